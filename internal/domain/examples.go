package domain

// Example is a ready-made transaction used to try out the scoring endpoints.
type Example struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Transaction Transaction `json:"transaction"`
}

func Examples() []Example {
	return []Example{
		{
			Name:        "normal_transaction",
			Description: "Daytime supermarket card purchase by a long-standing customer",
			Transaction: Transaction{
				Amount:           8500,
				Hour:             14,
				Type:             TypeCardPurchase,
				MerchantCategory: CategorySupermarket,
				PaymentChannel:   ChannelPhysicalCard,
				CustomerRegion:   "Algiers",
				MonthlyIncome:    45000,
				AccountAgeDays:   500,
			},
		},
		{
			Name:        "fraudulent_transaction",
			Description: "Night-time online electronics purchase far above income on a new account",
			Transaction: Transaction{
				Amount:           125000,
				Hour:             3,
				Type:             TypeOnlinePayment,
				MerchantCategory: CategoryElectronics,
				PaymentChannel:   ChannelInternetBanking,
				CustomerRegion:   "Algiers",
				MonthlyIncome:    35000,
				AccountAgeDays:   30,
			},
		},
		{
			Name:        "suspicious_transaction",
			Description: "Late-evening travel transfer over mobile banking",
			Transaction: Transaction{
				Amount:           45000,
				Hour:             22,
				Type:             TypeTransfer,
				MerchantCategory: CategoryTravel,
				PaymentChannel:   ChannelMobileBanking,
				CustomerRegion:   "Oran",
				MonthlyIncome:    38000,
				AccountAgeDays:   150,
			},
		},
	}
}
