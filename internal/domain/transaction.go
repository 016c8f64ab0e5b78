package domain

import (
	"time"

	"github.com/google/uuid"
)

type TransactionType string
type MerchantCategory string
type PaymentChannel string

const (
	TypeCardPurchase  TransactionType = "CARD_PURCHASE"
	TypeATMWithdrawal TransactionType = "ATM_WITHDRAWAL"
	TypeTransfer      TransactionType = "TRANSFER"
	TypeOnlinePayment TransactionType = "ONLINE_PAYMENT"
	TypeBillPayment   TransactionType = "BILL_PAYMENT"

	CategorySupermarket   MerchantCategory = "SUPERMARKET"
	CategoryElectronics   MerchantCategory = "ELECTRONICS"
	CategoryTravel        MerchantCategory = "TRAVEL"
	CategoryRealEstate    MerchantCategory = "REAL_ESTATE"
	CategoryRestaurant    MerchantCategory = "RESTAURANT"
	CategoryFuel          MerchantCategory = "FUEL"
	CategoryPharmacy      MerchantCategory = "PHARMACY"
	CategoryATM           MerchantCategory = "ATM"
	CategoryClothing      MerchantCategory = "CLOTHING"
	CategoryHealth        MerchantCategory = "HEALTH"
	CategoryEntertainment MerchantCategory = "ENTERTAINMENT"
	CategoryOther         MerchantCategory = "OTHER"

	ChannelPhysicalCard    PaymentChannel = "PHYSICAL_CARD"
	ChannelMobileBanking   PaymentChannel = "MOBILE_BANKING"
	ChannelInternetBanking PaymentChannel = "INTERNET_BANKING"
	ChannelATM             PaymentChannel = "ATM"
	ChannelBranch          PaymentChannel = "BRANCH"
)

// Transaction is the snapshot of primitive attributes a single assessment is
// computed from. It is never modified once scoring starts.
type Transaction struct {
	ID               string           `json:"id,omitempty"`
	Amount           float64          `json:"amount" validate:"gt=0"`
	Hour             int              `json:"hour" validate:"gte=0,lte=23"`
	Type             TransactionType  `json:"transaction_type" validate:"required,transaction_type"`
	MerchantCategory MerchantCategory `json:"merchant_category" validate:"required,merchant_category"`
	PaymentChannel   PaymentChannel   `json:"payment_channel" validate:"required,payment_channel"`
	CustomerRegion   string           `json:"customer_region,omitempty" validate:"max=64"`
	MonthlyIncome    float64          `json:"monthly_income" validate:"gt=0"`
	AccountAgeDays   int              `json:"account_age_days" validate:"gte=0"`
	CreatedAt        time.Time        `json:"created_at,omitzero"`
}

func NewTransaction(t TransactionType, amount float64, hour int) *Transaction {
	return &Transaction{
		ID:        NewTransactionID(),
		Type:      t,
		Amount:    amount,
		Hour:      hour,
		CreatedAt: time.Now(),
	}
}

func (tx *Transaction) WithMerchant(category MerchantCategory, channel PaymentChannel) *Transaction {
	tx.MerchantCategory = category
	tx.PaymentChannel = channel
	return tx
}

func (tx *Transaction) WithCustomer(region string, monthlyIncome float64, accountAgeDays int) *Transaction {
	tx.CustomerRegion = region
	tx.MonthlyIncome = monthlyIncome
	tx.AccountAgeDays = accountAgeDays
	return tx
}

var (
	transactionTypes = []TransactionType{
		TypeCardPurchase, TypeATMWithdrawal, TypeTransfer, TypeOnlinePayment, TypeBillPayment,
	}
	merchantCategories = []MerchantCategory{
		CategorySupermarket, CategoryElectronics, CategoryTravel, CategoryRealEstate,
		CategoryRestaurant, CategoryFuel, CategoryPharmacy, CategoryATM,
		CategoryClothing, CategoryHealth, CategoryEntertainment, CategoryOther,
	}
	paymentChannels = []PaymentChannel{
		ChannelPhysicalCard, ChannelMobileBanking, ChannelInternetBanking, ChannelATM, ChannelBranch,
	}
)

func TransactionTypes() []TransactionType {
	return append([]TransactionType(nil), transactionTypes...)
}

func MerchantCategories() []MerchantCategory {
	return append([]MerchantCategory(nil), merchantCategories...)
}

func PaymentChannels() []PaymentChannel {
	return append([]PaymentChannel(nil), paymentChannels...)
}

func (t TransactionType) Valid() bool {
	for _, v := range transactionTypes {
		if v == t {
			return true
		}
	}
	return false
}

func (c MerchantCategory) Valid() bool {
	for _, v := range merchantCategories {
		if v == c {
			return true
		}
	}
	return false
}

func (c PaymentChannel) Valid() bool {
	for _, v := range paymentChannels {
		if v == c {
			return true
		}
	}
	return false
}

func NewTransactionID() string {
	return "txn_" + uuid.NewString()
}
