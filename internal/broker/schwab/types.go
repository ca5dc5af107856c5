package schwab

// --------------------------------------------------------------------------
// Schwab payload DTOs
// --------------------------------------------------------------------------

type accountBalance struct {
	AccountID       string          `json:"accountId"`
	AccountNickname string          `json:"accountNickname"`
	Info            accountInfo     `json:"info"`
	OptionDetails   optionDetails   `json:"optionDetails"`
	MarginsInfo     marginsInfo     `json:"marginsInfo"`
	FundsAvailable  fundsAvailable  `json:"fundsAvailable"`
	Holdings        []holdingsGroup `json:"holdings"`
}

type accountInfo struct {
	IsIra bool `json:"isIra"`
}

type optionDetails struct {
	OptionsApprovalCode string `json:"optionsApprovalCode"`
}

type marginsInfo struct {
	BalanceSubjectInterest float64 `json:"balanceSubjectInterest"`
}

type fundsAvailable struct {
	WithdrawFunds withdrawFunds `json:"withdrawFunds"`
}

type withdrawFunds struct {
	CashBorrowing float64 `json:"cashBorrowing"`
	Borrowing     float64 `json:"borrowing"`
}

type holdingsGroup struct {
	GroupName string     `json:"groupName"`
	Positions []position `json:"positions"`
}

type position struct {
	SymbolDetail        symbolDetail    `json:"symbolDetail"`
	ChildOptionHoldings []optionHolding `json:"childOptionHoldings"`
}

type optionHolding struct {
	Quantity             int                    `json:"quantity"`
	MaturityDate         string                 `json:"maturityDate"`
	SymbolDetail         symbolDetail           `json:"symbolDetail"`
	MarginOptionStrategy []marginOptionStrategy `json:"marginOptionStrategy"`
	CostDetail           costDetail             `json:"costDetail"`
	PriceDetail          priceDetail            `json:"priceDetail"`
}

type symbolDetail struct {
	Symbol      string `json:"symbol"`
	Description string `json:"description"`
}

type marginOptionStrategy struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Sequence int    `json:"sequence"`
}

type costDetail struct {
	CostBasisDetail costBasisDetail `json:"costBasisDetail"`
}

type costBasisDetail struct {
	CostBasis float64 `json:"costBasis"`
}

type priceDetail struct {
	MarketValue float64 `json:"marketValue"`
}
