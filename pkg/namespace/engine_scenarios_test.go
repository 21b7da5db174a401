package namespace_test

import (
	"context"
	"errors"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nimbusfs/nimbusfs/pkg/acl"
	"github.com/nimbusfs/nimbusfs/pkg/blobstore/localfs"
	"github.com/nimbusfs/nimbusfs/pkg/clock"
	"github.com/nimbusfs/nimbusfs/pkg/errtypes"
	"github.com/nimbusfs/nimbusfs/pkg/metadata/memstore"
	"github.com/nimbusfs/nimbusfs/pkg/namespace"
	"github.com/nimbusfs/nimbusfs/pkg/tenant"
)

func newTestEngine() (*namespace.Engine, namespace.AuthContext) {
	base, err := os.MkdirTemp("", "nimbusfs-namespace-*")
	Expect(err).NotTo(HaveOccurred())
	DeferCleanup(func() { _ = os.RemoveAll(base) })

	store := memstore.New()
	local := localfs.New(base, nil)
	router := tenant.New(store, local, nil)
	evaluator := acl.NewEvaluator(store)
	engine := namespace.New(router, evaluator, nil, nil)

	return engine, namespace.AuthContext{User: "alice", Roles: []string{"users"}, Tenant: "t1"}
}

var _ = Describe("Namespace engine", func() {
	var (
		ctx    context.Context
		engine *namespace.Engine
		alice  namespace.AuthContext
	)

	BeforeEach(func() {
		ctx = context.Background()
		engine, alice = newTestEngine()
	})

	Describe("Scenario 1: basic write-read cycle", func() {
		It("round-trips a put through a get", func() {
			uidA, err := engine.Mkdir(ctx, alice, clock.Root, "a")
			Expect(err).NotTo(HaveOccurred())

			uidF, err := engine.Touch(ctx, alice, uidA, "f.txt")
			Expect(err).NotTo(HaveOccurred())

			Expect(engine.Put(ctx, alice, uidF, []byte("hello"))).To(Succeed())

			data, err := engine.Get(ctx, alice, uidF)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(Equal("hello"))

			info, err := engine.Stat(ctx, alice, uidF)
			Expect(err).NotTo(HaveOccurred())
			Expect(info.Size).To(Equal(int64(5)))

			versions, err := engine.ListVersions(ctx, alice, uidF)
			Expect(err).NotTo(HaveOccurred())
			Expect(versions).To(HaveLen(1))
		})
	})

	Describe("Scenario 2: deletion recovery", func() {
		It("restores a removed file via undelete", func() {
			uidA, err := engine.Mkdir(ctx, alice, clock.Root, "a")
			Expect(err).NotTo(HaveOccurred())
			uidF, err := engine.Touch(ctx, alice, uidA, "f.txt")
			Expect(err).NotTo(HaveOccurred())
			Expect(engine.Put(ctx, alice, uidF, []byte("hello"))).To(Succeed())

			Expect(engine.Remove(ctx, alice, uidF)).To(Succeed())

			_, err = engine.Get(ctx, alice, uidF)
			var nf errtypes.IsNotFound
			Expect(errors.As(err, &nf)).To(BeTrue())

			children, err := engine.ListDir(ctx, alice, uidA)
			Expect(err).NotTo(HaveOccurred())
			Expect(containsUID(children, uidF)).To(BeFalse())

			withDeleted, err := engine.ListDirWithDeleted(ctx, alice, uidA)
			Expect(err).NotTo(HaveOccurred())
			Expect(containsUID(withDeleted, uidF)).To(BeTrue())

			Expect(engine.Undelete(ctx, alice, uidF)).To(Succeed())

			data, err := engine.Get(ctx, alice, uidF)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(Equal("hello"))
		})
	})

	Describe("Scenario 3: versioning and restore", func() {
		It("preserves the original version after a restore", func() {
			uidF, err := engine.Touch(ctx, alice, clock.Root, "f.txt")
			Expect(err).NotTo(HaveOccurred())

			Expect(engine.Put(ctx, alice, uidF, []byte("v1"))).To(Succeed())
			Expect(engine.Put(ctx, alice, uidF, []byte("v2"))).To(Succeed())
			Expect(engine.Put(ctx, alice, uidF, []byte("v3"))).To(Succeed())

			versions, err := engine.ListVersions(ctx, alice, uidF)
			Expect(err).NotTo(HaveOccurred())
			Expect(versions).To(HaveLen(3))
			ts1 := versions[2].VersionTS

			Expect(engine.RestoreToVersion(ctx, alice, uidF, ts1)).To(Succeed())

			data, err := engine.Get(ctx, alice, uidF)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(Equal("v1"))

			versions, err = engine.ListVersions(ctx, alice, uidF)
			Expect(err).NotTo(HaveOccurred())
			Expect(versions).To(HaveLen(4))
		})
	})

	Describe("Scenario 5: name conflict", func() {
		It("rejects undelete when a sibling now holds the name", func() {
			uidX, err := engine.Touch(ctx, alice, clock.Root, "same")
			Expect(err).NotTo(HaveOccurred())

			_, err = engine.Touch(ctx, alice, clock.Root, "same")
			var conflict errtypes.IsConflict
			Expect(errors.As(err, &conflict)).To(BeTrue())

			Expect(engine.Remove(ctx, alice, uidX)).To(Succeed())

			uidY, err := engine.Touch(ctx, alice, clock.Root, "same")
			Expect(err).NotTo(HaveOccurred())
			Expect(uidY).NotTo(Equal(uidX))

			err = engine.Undelete(ctx, alice, uidX)
			Expect(errors.As(err, &conflict)).To(BeTrue())
		})
	})

	Describe("Scenario 6: read-only mode", func() {
		It("rejects mutations but keeps serving reads", func() {
			uidF, err := engine.Touch(ctx, alice, clock.Root, "f.txt")
			Expect(err).NotTo(HaveOccurred())
			Expect(engine.Put(ctx, alice, uidF, []byte("hello"))).To(Succeed())

			engine.SetPrimaryAvailable(false)

			_, err = engine.Touch(ctx, alice, clock.Root, "g.txt")
			var ro errtypes.IsReadOnly
			Expect(errors.As(err, &ro)).To(BeTrue())

			err = engine.Put(ctx, alice, uidF, []byte("world"))
			Expect(errors.As(err, &ro)).To(BeTrue())

			data, err := engine.Get(ctx, alice, uidF)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(Equal("hello"))

			_, err = engine.Stat(ctx, alice, uidF)
			Expect(err).NotTo(HaveOccurred())
		})
	})
})

func containsUID(infos []namespace.FileInfo, uid string) bool {
	for _, f := range infos {
		if f.UID == uid {
			return true
		}
	}
	return false
}
