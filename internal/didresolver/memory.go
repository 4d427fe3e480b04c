package didresolver

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"sync"

	"rxchange/pkg/domain"
	dErrors "rxchange/pkg/domain-errors"
)

// MemoryResolver is an in-memory resolver for tests and local development.
type MemoryResolver struct {
	mu   sync.RWMutex
	docs map[string]*Document
	// FailWith, when set, makes every Resolve call return this error. Used to
	// simulate resolver outages.
	FailWith error
}

func NewMemoryResolver() *MemoryResolver {
	return &MemoryResolver{docs: make(map[string]*Document)}
}

// Register publishes a document.
func (r *MemoryResolver) Register(doc *Document) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[doc.DID] = doc
}

// RegisterKey publishes a single-key document for a DID and returns the
// verification method ID.
func (r *MemoryResolver) RegisterKey(did domain.DID, key ed25519.PublicKey) string {
	methodID := fmt.Sprintf("%s#key-1", did)
	r.Register(&Document{
		DID: did.String(),
		VerificationMethods: []VerificationMethod{{
			ID:              methodID,
			Type:            "Ed25519VerificationKey2020",
			Controller:      did.String(),
			PublicKeyBase64: base64.StdEncoding.EncodeToString(key),
		}},
	})
	return methodID
}

func (r *MemoryResolver) Resolve(_ context.Context, did domain.DID) (*Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.FailWith != nil {
		return nil, r.FailWith
	}
	doc, ok := r.docs[did.String()]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound,
			fmt.Sprintf("no document published for %s", did))
	}
	return doc, nil
}
