// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The Arobito Project

//go:build integration

package store_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/arobito/arobito/internal/store"
)

var _ = Describe("Migrator", Ordered, func() {
	var migrator *store.Migrator

	BeforeAll(func() {
		var err error
		migrator, err = store.NewMigrator(connStr)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() { _ = migrator.Close() })
	})

	It("starts at version zero", func() {
		version, dirty, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(BeZero())
		Expect(dirty).To(BeFalse())
	})

	It("applies every migration", func() {
		Expect(migrator.Up()).To(Succeed())

		version, dirty, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(Equal(uint(2)))
		Expect(dirty).To(BeFalse())

		pending, err := migrator.PendingMigrations()
		Expect(err).NotTo(HaveOccurred())
		Expect(pending).To(BeEmpty())
	})

	It("steps down and back up", func() {
		Expect(migrator.Steps(-1)).To(Succeed())
		version, _, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(Equal(uint(1)))

		Expect(migrator.Steps(1)).To(Succeed())
		version, _, err = migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(Equal(uint(2)))
	})

	It("creates the account tables", func() {
		pool, err := store.Connect(context.Background(), connStr)
		Expect(err).NotTo(HaveOccurred())
		defer pool.Close()

		var tables int
		err = pool.QueryRow(context.Background(), `
			SELECT count(*) FROM information_schema.tables
			WHERE table_name IN ('accounts', 'realm_secret')
		`).Scan(&tables)
		Expect(err).NotTo(HaveOccurred())
		Expect(tables).To(Equal(2))
	})

	It("rejects a second realm secret row", func() {
		pool, err := store.Connect(context.Background(), connStr)
		Expect(err).NotTo(HaveOccurred())
		defer pool.Close()

		ctx := context.Background()
		_, err = pool.Exec(ctx, `INSERT INTO realm_secret (secret) VALUES ('one')`)
		Expect(err).NotTo(HaveOccurred())
		_, err = pool.Exec(ctx, `INSERT INTO realm_secret (id, secret) VALUES (2, 'two')`)
		Expect(err).To(HaveOccurred())
		_, err = pool.Exec(ctx, `DELETE FROM realm_secret`)
		Expect(err).NotTo(HaveOccurred())
	})

	It("rolls everything back", func() {
		Expect(migrator.Down()).To(Succeed())
		version, dirty, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(BeZero())
		Expect(dirty).To(BeFalse())
	})

	It("forces a version without running migrations", func() {
		Expect(migrator.Up()).To(Succeed())
		Expect(migrator.Force(1)).To(Succeed())
		version, dirty, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(Equal(uint(1)))
		Expect(dirty).To(BeFalse())
		Expect(migrator.Force(2)).To(Succeed())
	})
})
