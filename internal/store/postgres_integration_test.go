// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package store_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/holomush/questkeeper/internal/store"
)

// startPostgres runs a migrated PostgreSQL container and returns its URL.
func startPostgres(ctx context.Context) (string, func(), error) {
	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("questkeeper_test"),
		postgres.WithUsername("questkeeper"),
		postgres.WithPassword("questkeeper"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return "", nil, err
	}
	url, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return "", nil, err
	}
	return url, func() { _ = container.Terminate(ctx) }, nil
}

var _ = Describe("PostgresStore", func() {
	var (
		ctx       context.Context
		url       string
		terminate func()
		s         *store.PostgresStore
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		url, terminate, err = startPostgres(ctx)
		Expect(err).NotTo(HaveOccurred())

		m, err := store.NewMigrator(url)
		Expect(err).NotTo(HaveOccurred())
		Expect(m.Up()).To(Succeed())
		Expect(m.Close()).To(Succeed())

		s, err = store.OpenPostgres(ctx, url, 3)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		_ = s.Close()
		terminate()
	})

	It("reports missing documents", func() {
		_, err := s.Load(ctx, store.KeyQuestTree)
		Expect(err).To(MatchError(store.ErrNotFound))
	})

	It("advances versions and rejects stale writes", func() {
		v1, err := s.Save(ctx, store.KeyQuestTree, []byte(`{"quests":{}}`), 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(v1).To(Equal(int64(1)))

		_, err = s.Save(ctx, store.KeyQuestTree, []byte(`{"quests":{}}`), 0)
		Expect(err).To(MatchError(store.ErrVersionConflict))

		v2, err := s.Save(ctx, store.KeyQuestTree, []byte(`{"quests":{"a":{}}}`), v1)
		Expect(err).NotTo(HaveOccurred())
		Expect(v2).To(Equal(int64(2)))

		doc, err := s.Load(ctx, store.KeyQuestTree)
		Expect(err).NotTo(HaveOccurred())
		Expect(doc.Version).To(Equal(v2))
		Expect(string(doc.Data)).To(MatchJSON(`{"quests":{"a":{}}}`))
	})

	It("upserts without a version check", func() {
		v, err := s.Save(ctx, store.KeyPermissions, []byte(`{}`), store.AnyVersion)
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal(int64(1)))
		v, err = s.Save(ctx, store.KeyPermissions, []byte(`{}`), store.AnyVersion)
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal(int64(2)))
	})

	It("exposes its pool", func() {
		Expect(s.Pool()).NotTo(BeNil())
	})
})

var _ = Describe("Migrator", func() {
	It("walks the full up/down cycle", func() {
		ctx := context.Background()
		url, terminate, err := startPostgres(ctx)
		Expect(err).NotTo(HaveOccurred())
		defer terminate()

		m, err := store.NewMigrator(url)
		Expect(err).NotTo(HaveOccurred())
		defer m.Close()

		pending, err := m.Pending()
		Expect(err).NotTo(HaveOccurred())
		Expect(pending).To(Equal([]uint{1, 2}))

		Expect(m.Up()).To(Succeed())
		version, dirty, err := m.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(Equal(uint(2)))
		Expect(dirty).To(BeFalse())

		Expect(m.Steps(-1)).To(Succeed())
		version, _, err = m.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(Equal(uint(1)))

		Expect(m.Down()).To(Succeed())
		version, _, err = m.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(version).To(BeZero())
	})
})
