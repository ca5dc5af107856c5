package fidelity

// --------------------------------------------------------------------------
// Fidelity payload DTOs
// --------------------------------------------------------------------------

// accountsPayload is the raw capture keyed by account number.
type accountsPayload map[string]accountDetail

type accountDetail struct {
	Positions           []position          `json:"positions"`
	BrokerageAcctDetail brokerageAcctDetail `json:"brokerageAcctDetail"`
	AcctDetails         acctDetails         `json:"acctDetails"`
}

type position struct {
	Symbol              string          `json:"symbol"`
	SecurityType        string          `json:"securityType"`
	SecurityDescription string          `json:"securityDescription"`
	Quantity            int             `json:"quantity"`
	CostBasisDetail     costBasisDetail `json:"costBasisDetail"`
}

type costBasisDetail struct {
	AvgCostPerShare float64 `json:"avgCostPerShare"`
}

type brokerageAcctDetail struct {
	RecentBalanceDetail recentBalanceDetail `json:"recentBalanceDetail"`
}

type recentBalanceDetail struct {
	AcctValDetail             acctValDetail             `json:"acctValDetail"`
	AvailableToWithdrawDetail availableToWithdrawDetail `json:"availableToWithdrawDetail"`
}

type acctValDetail struct {
	MarketVal *float64 `json:"marketVal"`
	NetWorth  *float64 `json:"netWorth"`
}

type availableToWithdrawDetail struct {
	CashWithMargin *float64 `json:"cashWithMargin"`
	CashOnly       *float64 `json:"cashOnly"`
}

type acctDetails struct {
	AcctTypesIndDetail acctTypesIndDetail `json:"acctTypesIndDetail"`
}

type acctTypesIndDetail struct {
	IsRetirement bool `json:"isRetirement"`
}
