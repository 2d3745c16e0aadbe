package models

import (
	"log"

	"bitbucket.org/mmdatafocus/retailpos_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&BankAccount{},
		&PostingLock{},
		&BalanceTransaction{},
		&OpeningBalance{}, &OpeningBalanceDetail{},
		&Sale{}, &SalePayment{},
		&Purchase{}, &PurchasePayment{},
		&Expense{}, &ExpensePayment{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
