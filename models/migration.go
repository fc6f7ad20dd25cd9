package models

import (
	"log"

	"bitbucket.org/mmdatafocus/hvacops_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Business{}, &User{},
		&QAPolicy{},
		&JobSignoff{}, &JobPhoto{},
		&HoldbackEntry{}, &OverrideRecord{},
		&History{},
		&QAEventRecord{},
		&IdempotencyKey{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
