// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeep Contributors

package filestore_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/gatekeep/gatekeep/internal/auth"
	"github.com/gatekeep/gatekeep/internal/auth/filestore"
	"github.com/gatekeep/gatekeep/pkg/errutil"
)

func account(id int64, username, email string) auth.Account {
	return auth.Account{
		ID:           id,
		FirstName:    "First",
		LastName:     "Last",
		Email:        email,
		Username:     username,
		PasswordHash: "aGFzaA==",
		Role:         auth.RoleUser,
	}
}

var _ = Describe("Store", func() {
	var (
		ctx   context.Context
		dir   string
		path  string
		store *filestore.Store
	)

	BeforeEach(func() {
		ctx = context.Background()
		dir = GinkgoT().TempDir()
		path = filepath.Join(dir, "nested", filestore.DefaultFileName)

		var err error
		store, err = filestore.New(path)
		Expect(err).NotTo(HaveOccurred())
	})

	It("requires a path", func() {
		_, err := filestore.New("")
		Expect(err).To(HaveOccurred())
		Expect(errutil.Code(err)).To(Equal("FILESTORE_PATH_REQUIRED"))
	})

	Context("with no file on disk", func() {
		It("loads an empty list", func() {
			accounts, err := store.LoadAll(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(accounts).To(BeEmpty())
		})

		It("is healthy", func() {
			Expect(store.Ping(ctx)).To(Succeed())
		})

		It("creates the file with owner-only permissions on first save", func() {
			Expect(store.Save(ctx, account(1, "smithali", "alice@example.com"))).To(Succeed())

			info, err := os.Stat(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(info.Mode().Perm()).To(Equal(os.FileMode(0o600)))
		})
	})

	Context("after saving accounts", func() {
		BeforeEach(func() {
			Expect(store.Save(ctx, account(2, "jonesbob", "bob@example.com"))).To(Succeed())
			Expect(store.Save(ctx, account(1, "smithali", "alice@example.com"))).To(Succeed())
		})

		It("returns them ordered by id", func() {
			accounts, err := store.LoadAll(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(accounts).To(HaveLen(2))
			Expect(accounts[0].Username).To(Equal("smithali"))
			Expect(accounts[1].Username).To(Equal("jonesbob"))
		})

		It("persists them for a fresh store on the same file", func() {
			reopened, err := filestore.New(path)
			Expect(err).NotTo(HaveOccurred())

			accounts, err := reopened.LoadAll(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(accounts).To(HaveLen(2))
			Expect(accounts[1]).To(Equal(account(2, "jonesbob", "bob@example.com")))
		})

		It("replaces an account with the same id", func() {
			updated := account(1, "smithali", "alice@new.example.com")
			Expect(store.Save(ctx, updated)).To(Succeed())

			accounts, err := store.LoadAll(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(accounts).To(HaveLen(2))
			Expect(accounts[0].Email).To(Equal("alice@new.example.com"))
		})

		It("creates a new account without touching the others", func() {
			Expect(store.Create(ctx, account(3, "roecar", "carol@example.com"))).To(Succeed())

			reopened, err := filestore.New(path)
			Expect(err).NotTo(HaveOccurred())
			accounts, err := reopened.LoadAll(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(accounts).To(HaveLen(3))
			Expect(accounts[0]).To(Equal(account(1, "smithali", "alice@example.com")))
			Expect(accounts[2].Username).To(Equal("roecar"))
		})

		It("refuses to create over a taken id", func() {
			err := store.Create(ctx, account(1, "roecar", "carol@example.com"))
			Expect(errors.Is(err, auth.ErrConflict)).To(BeTrue())
			Expect(errutil.Code(err)).To(Equal(auth.CodeWriteConflict))

			accounts, err := store.LoadAll(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(accounts[0].Username).To(Equal("smithali"))
		})

		It("refuses to create over a taken username", func() {
			err := store.Create(ctx, account(3, "smithali", "carol@example.com"))
			Expect(errors.Is(err, auth.ErrConflict)).To(BeTrue())
		})

		It("reports a taken email as a duplicate account", func() {
			err := store.Create(ctx, account(3, "roecar", "alice@example.com"))
			Expect(errors.Is(err, auth.ErrDuplicateAccount)).To(BeTrue())
			Expect(errutil.Code(err)).To(Equal(auth.CodeDuplicateAccount))
		})

		It("hands out copies", func() {
			accounts, err := store.LoadAll(ctx)
			Expect(err).NotTo(HaveOccurred())
			accounts[0].Email = "mutated@example.com"

			again, err := store.LoadAll(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(again[0].Email).To(Equal("alice@example.com"))
		})

		It("deletes by id", func() {
			Expect(store.DeleteByID(ctx, 1)).To(Succeed())

			reopened, err := filestore.New(path)
			Expect(err).NotTo(HaveOccurred())
			accounts, err := reopened.LoadAll(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(accounts).To(HaveLen(1))
			Expect(accounts[0].ID).To(Equal(int64(2)))
		})

		It("reports a missing id as not found", func() {
			err := store.DeleteByID(ctx, 99)
			Expect(errors.Is(err, auth.ErrNotFound)).To(BeTrue())
			Expect(errutil.Code(err)).To(Equal(auth.CodeAccountNotFound))
		})

		It("writes plain JSON without leftover temp files", func() {
			data, err := os.ReadFile(path)
			Expect(err).NotTo(HaveOccurred())

			var decoded []auth.Account
			Expect(json.Unmarshal(data, &decoded)).To(Succeed())
			Expect(decoded).To(HaveLen(2))

			entries, err := os.ReadDir(filepath.Dir(path))
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(1))
		})

		It("writes an empty array after the last delete", func() {
			Expect(store.DeleteByID(ctx, 1)).To(Succeed())
			Expect(store.DeleteByID(ctx, 2)).To(Succeed())

			data, err := os.ReadFile(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(Equal("[]"))
		})
	})

	Context("with a corrupt file", func() {
		BeforeEach(func() {
			Expect(os.MkdirAll(filepath.Dir(path), 0o700)).To(Succeed())
			Expect(os.WriteFile(path, []byte("{not json"), 0o600)).To(Succeed())
		})

		It("fails to load", func() {
			_, err := store.LoadAll(ctx)
			Expect(err).To(HaveOccurred())
			Expect(errutil.Code(err)).To(Equal("FILESTORE_CORRUPT"))
		})

		It("refuses to overwrite it", func() {
			err := store.Save(ctx, account(1, "smithali", "alice@example.com"))
			Expect(err).To(HaveOccurred())

			data, readErr := os.ReadFile(path)
			Expect(readErr).NotTo(HaveOccurred())
			Expect(string(data)).To(Equal("{not json"))
		})
	})

	It("treats an empty file as no accounts", func() {
		Expect(os.MkdirAll(filepath.Dir(path), 0o700)).To(Succeed())
		Expect(os.WriteFile(path, nil, 0o600)).To(Succeed())

		accounts, err := store.LoadAll(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(accounts).To(BeEmpty())
	})

	It("serialises concurrent saves", func() {
		var wg sync.WaitGroup
		for i := int64(1); i <= 20; i++ {
			wg.Add(1)
			go func(id int64) {
				defer wg.Done()
				defer GinkgoRecover()
				Expect(store.Save(ctx, account(id, "user", "u@example.com"))).To(Succeed())
			}(i)
		}
		wg.Wait()

		reopened, err := filestore.New(path)
		Expect(err).NotTo(HaveOccurred())
		Eventually(func() ([]auth.Account, error) {
			return reopened.LoadAll(ctx)
		}).WithTimeout(time.Second).Should(HaveLen(20))
	})
})

var _ = Describe("Store with an Authenticator", func() {
	It("keeps registrations across restarts", func() {
		ctx := context.Background()
		path := filepath.Join(GinkgoT().TempDir(), filestore.DefaultFileName)

		newAuthenticator := func() *auth.Authenticator {
			store, err := filestore.New(path)
			Expect(err).NotTo(HaveOccurred())
			hasher, err := auth.NewPBKDF2Hasher(auth.HasherConfig{
				Iterations: auth.MinIterations, SaltLength: 16, KeyLength: 20,
			})
			Expect(err).NotTo(HaveOccurred())
			tracker, err := auth.NewMemoryAttemptTracker(auth.LockoutConfig{Threshold: 3})
			Expect(err).NotTo(HaveOccurred())
			issuer, err := auth.NewJWTIssuer(auth.SessionConfig{
				SigningKey: []byte("0123456789abcdef0123456789abcdef"),
				TTL:        time.Minute,
			})
			Expect(err).NotTo(HaveOccurred())
			authn, err := auth.NewAuthenticator(store, hasher, tracker, issuer)
			Expect(err).NotTo(HaveOccurred())
			return authn
		}

		username, err := newAuthenticator().Register(ctx, auth.RegisterRequest{
			FirstName: "Alice", LastName: "Smith", Email: "alice@example.com", Password: "Passw0rd!",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(username).To(Equal("smithali"))

		result, err := newAuthenticator().Login(ctx, auth.LoginRequest{Username: "SmithAli", Password: "Passw0rd!"})
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Username).To(Equal("smithali"))
	})
})
