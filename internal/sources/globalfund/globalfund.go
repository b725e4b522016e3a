// Package globalfund is the typed client for The Global Fund data service.
package globalfund

import (
	"context"
	"errors"
	"strings"

	"healthdash/internal/sources/odata"
	"healthdash/internal/upstream"
)

// StatusActive is the implementation period status of running grants.
const StatusActive = "Active"

// ImplementationPeriod is a row of VGrantAgreementImplementationPeriods.
type ImplementationPeriod struct {
	ID                         string     `json:"grantAgreementImplementationPeriodId"`
	GrantAgreementID           string     `json:"grantAgreementId"`
	GrantAgreementNumber       string     `json:"grantAgreementNumber"`
	GrantAgreementTitle        string     `json:"grantAgreementTitle"`
	GrantAgreementStatus       string     `json:"grantAgreementStatusTypeName"`
	GeographicAreaCode         string     `json:"geographicAreaCode_ISO3"`
	GeographicAreaName         string     `json:"geographicAreaName"`
	GeographicAreaLevelName    string     `json:"geographicAreaLevelName"`
	MultiCountryName           string     `json:"multiCountryName"`
	ComponentName              string     `json:"componentName"`
	PrincipalRecipientName     string     `json:"principalRecipientName"`
	PrincipalRecipientShort    string     `json:"principalRecipientShortName"`
	PrincipalRecipientClass    string     `json:"principalRecipientClassificationName"`
	PrincipalRecipientSubClass string     `json:"principalRecipientSubClassificationName"`
	IsActive                   bool       `json:"isActive"`
	Status                     string     `json:"implementationPeriodStatusTypeName"`
	Number                     int        `json:"implementationPeriodNumber"`
	StartDate                  odata.Date `json:"implementationPeriodStartDate"`
	EndDate                    odata.Date `json:"implementationPeriodEndDate"`
	ProgramStartDate           odata.Date `json:"programStartDate"`
	ProgramEndDate             odata.Date `json:"programEndDate"`
	Currency                   string     `json:"currency"`
	TotalSignedAmount          float64    `json:"totalSignedAmount"`
	TotalCommittedAmount       float64    `json:"totalCommittedAmount"`
	TotalDisbursedAmount       float64    `json:"totalDisbursedAmount"`
}

func (p *ImplementationPeriod) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return errors.New("grantAgreementImplementationPeriodId is required")
	}
	return nil
}

// CountryCode implements the join key for reference lookups.
func (p ImplementationPeriod) CountryCode() string { return p.GeographicAreaCode }

// Disbursement is a row of GrantAgreementDisbursements.
type Disbursement struct {
	ID                     string     `json:"disbursementId"`
	ImplementationPeriodID string     `json:"grantAgreementImplementationPeriodId"`
	Amount                 float64    `json:"disbursementAmount"`
	Date                   odata.Date `json:"disbursementDate"`
}

func (d *Disbursement) Validate() error {
	if strings.TrimSpace(d.ImplementationPeriodID) == "" {
		return errors.New("grantAgreementImplementationPeriodId is required")
	}
	if d.Date.IsZero() {
		return errors.New("disbursementDate is required")
	}
	return nil
}

// Client fetches Global Fund collections through a (memoized) Fetcher.
type Client struct {
	baseURL string
	fetcher upstream.Fetcher
}

func NewClient(baseURL string, fetcher upstream.Fetcher) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), fetcher: fetcher}
}

func (c *Client) BaseURL() string { return c.baseURL }

func ImplementationPeriodsURL(base string) string {
	return base + "/v3.3/odata/VGrantAgreementImplementationPeriods"
}

func DisbursementsURL(base string) string {
	return base + "/v3.3/odata/GrantAgreementDisbursements"
}

func (c *Client) ImplementationPeriods(ctx context.Context) ([]ImplementationPeriod, error) {
	return odata.Collect[ImplementationPeriod](ctx, c.fetcher, ImplementationPeriodsURL(c.baseURL))
}

func (c *Client) Disbursements(ctx context.Context) ([]Disbursement, error) {
	return odata.Collect[Disbursement](ctx, c.fetcher, DisbursementsURL(c.baseURL))
}
