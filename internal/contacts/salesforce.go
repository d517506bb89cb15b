package contacts

import (
	"context"
	"os"
	"strings"

	"github.com/k-capehart/go-salesforce/v3"
	"github.com/rotisserie/eris"
)

// sfAPI is the slice of go-salesforce used here, extracted for testing.
//
// NOTE: go-salesforce/v3 does not accept context.Context; the ctx parameter
// on UpdateResearch is honored only for early cancellation checks.
type sfAPI interface {
	UpdateOne(sObjectName string, record any) error
}

var _ sfAPI = (*salesforce.Salesforce)(nil)

// SalesforceStore writes research output onto Salesforce Contact records.
type SalesforceStore struct {
	sf sfAPI
}

// SalesforceCreds holds JWT bearer auth settings.
type SalesforceCreds struct {
	ClientID string
	Username string
	KeyPath  string
	LoginURL string
}

// NewSalesforce authenticates with Salesforce via JWT and returns a contact
// store that updates Contact records.
func NewSalesforce(creds SalesforceCreds) (*SalesforceStore, error) {
	if creds.ClientID == "" {
		return nil, eris.New("sf: client ID is required")
	}

	pemData, err := os.ReadFile(creds.KeyPath)
	if err != nil {
		return nil, eris.Wrap(err, "sf: read JWT private key")
	}

	sf, err := salesforce.Init(salesforce.Creds{
		Domain:         creds.LoginURL,
		Username:       creds.Username,
		ConsumerKey:    creds.ClientID,
		ConsumerRSAPem: string(pemData),
	})
	if err != nil {
		return nil, eris.Wrap(err, "sf: init")
	}

	return &SalesforceStore{sf: sf}, nil
}

// UpdateResearch writes notes and tags to the Contact record. Salesforce
// field updates are idempotent by record id.
func (s *SalesforceStore) UpdateResearch(ctx context.Context, contactID, notes string, tags []string) error {
	if contactID == "" {
		return eris.New("sf: contact id is required")
	}
	if err := ctx.Err(); err != nil {
		return eris.Wrap(err, "sf: context done")
	}

	err := s.sf.UpdateOne("Contact", map[string]any{
		"Id":                contactID,
		"Research_Notes__c": notes,
		"Outreach_Tags__c":  strings.Join(tags, ";"),
	})
	if err != nil {
		return eris.Wrapf(err, "sf: update contact %s", contactID)
	}
	return nil
}

func (s *SalesforceStore) Close() error {
	return nil
}
