// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

//go:build integration

package postgres_test

import (
	"context"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/samber/oops"

	"github.com/authgate/authgate/internal/auth"
	"github.com/authgate/authgate/internal/auth/postgres"
)

var _ = Describe("AccountRepository", func() {
	var (
		ctx  context.Context
		repo *postgres.AccountRepository
	)

	BeforeEach(func() {
		ctx = context.Background()
		repo = postgres.NewAccountRepository(testPool)
		_, err := testPool.Exec(ctx, `DELETE FROM accounts`)
		Expect(err).NotTo(HaveOccurred())
	})

	newAccount := func(email string) *auth.Account {
		hasher := auth.NewArgon2idHasher()
		hash, err := hasher.Hash("correct horse")
		Expect(err).NotTo(HaveOccurred())
		account, err := auth.NewAccount(email, nil, hash, auth.RoleUser)
		Expect(err).NotTo(HaveOccurred())
		account.CreatedAt = account.CreatedAt.Truncate(time.Microsecond)
		account.UpdatedAt = account.UpdatedAt.Truncate(time.Microsecond)
		Expect(repo.Create(ctx, account)).To(Succeed())
		return account
	}

	It("round-trips an account", func() {
		created := newAccount("round@x.com")

		found, err := repo.FindByEmail(ctx, "round@x.com")
		Expect(err).NotTo(HaveOccurred())
		Expect(found.ID).To(Equal(created.ID))
		Expect(found.Role).To(Equal(auth.RoleUser))
		Expect(found.Status).To(Equal(auth.StatusActive))
		Expect(found.FailedAttempts).To(BeZero())
		Expect(found.LockedUntil).To(BeNil())
	})

	It("rejects a duplicate email", func() {
		newAccount("dup@x.com")
		again, err := auth.NewAccount("dup@x.com", nil, "hash", auth.RoleUser)
		Expect(err).NotTo(HaveOccurred())

		err = repo.Create(ctx, again)
		Expect(err).To(HaveOccurred())
		oopsErr, ok := oops.AsOops(err)
		Expect(ok).To(BeTrue())
		Expect(oopsErr.Code()).To(Equal("ACCOUNT_EMAIL_TAKEN"))
	})

	It("applies the failure update only against the expected prior", func() {
		account := newAccount("cas@x.com")
		until := time.Now().Add(5 * time.Minute).UTC().Truncate(time.Microsecond)

		applied, err := repo.ApplyFailureUpdate(ctx, account.ID, 0, 1, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(applied).To(BeTrue())

		applied, err = repo.ApplyFailureUpdate(ctx, account.ID, 0, 1, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(applied).To(BeFalse(), "stale prior must not apply")

		applied, err = repo.ApplyFailureUpdate(ctx, account.ID, 1, 255, &until)
		Expect(err).NotTo(HaveOccurred())
		Expect(applied).To(BeTrue())

		stored, err := repo.GetByID(ctx, account.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(stored.FailedAttempts).To(Equal(uint8(255)))
		Expect(stored.LockedUntil).NotTo(BeNil())
		Expect(stored.LockedUntil.Equal(until)).To(BeTrue())

		Expect(repo.ApplySuccessReset(ctx, account.ID)).To(Succeed())
		stored, err = repo.GetByID(ctx, account.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(stored.FailedAttempts).To(BeZero())
		Expect(stored.LockedUntil).To(BeNil())
	})

	It("counts every concurrent wrong password through the login service", func() {
		const attempts = 12
		account := newAccount("burst@x.com")

		tokens, err := auth.NewTokenIssuer([]byte("integration-secret-integration-secret"), time.Hour)
		Expect(err).NotTo(HaveOccurred())
		policy := auth.LockoutPolicy{Threshold: 3, Duration: 5 * time.Minute}
		svc, err := auth.NewService(repo, auth.NewArgon2idHasher(), tokens, policy,
			auth.WithUpdateRetry(2*attempts, 2*time.Millisecond))
		Expect(err).NotTo(HaveOccurred())

		var wg sync.WaitGroup
		for range attempts {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				result, err := svc.Login(ctx, "burst@x.com", "wrong")
				Expect(err).NotTo(HaveOccurred())
				Expect(result.Outcome).NotTo(Equal(auth.OutcomeSuccess))
			}()
		}
		wg.Wait()

		stored, err := repo.GetByID(ctx, account.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(stored.FailedAttempts).To(Equal(uint8(attempts)))
		Expect(stored.LockedUntil).NotTo(BeNil())
	})

	It("toggles status", func() {
		account := newAccount("status@x.com")
		Expect(repo.SetStatus(ctx, account.ID, auth.StatusInactive)).To(Succeed())

		stored, err := repo.GetByID(ctx, account.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(stored.Status).To(Equal(auth.StatusInactive))
	})
})
