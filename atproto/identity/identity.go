package identity

import (
	"errors"
	"strings"

	"github.com/PIPOGit/OAuthBluesky-sub000/atproto/syntax"
)

var (
	ErrHandleNotFound = errors.New("handle not found")
	ErrDIDNotFound    = errors.New("DID not found")

	// DID document exists but carries no usable PDS service entry
	ErrNoPDSEndpoint = errors.New("DID document has no PDS service endpoint")
)

// DIDDocument is the parsed form of a resolved DID document, limited to the
// fields relevant to atproto.
type DIDDocument struct {
	DID                syntax.DID              `json:"id"`
	AlsoKnownAs        []string                `json:"alsoKnownAs,omitempty"`
	VerificationMethod []DocVerificationMethod `json:"verificationMethod,omitempty"`
	Service            []DocService            `json:"service,omitempty"`
}

type DocVerificationMethod struct {
	ID                 string `json:"id"`
	Type               string `json:"type"`
	Controller         string `json:"controller"`
	PublicKeyMultibase string `json:"publicKeyMultibase"`
}

type DocService struct {
	ID              string `json:"id"`
	Type            string `json:"type"`
	ServiceEndpoint string `json:"serviceEndpoint"`
}

// PDSEndpoint returns the base URL of the account's PDS ("resource server").
//
// Prefers the service entry with the "#atproto_pds" fragment identifier;
// falls back to the first declared service.
func (doc *DIDDocument) PDSEndpoint() (string, error) {
	if len(doc.Service) == 0 {
		return "", ErrNoPDSEndpoint
	}
	for _, svc := range doc.Service {
		if strings.HasSuffix(svc.ID, "#atproto_pds") || svc.Type == "AtprotoPersonalDataServer" {
			if svc.ServiceEndpoint == "" {
				return "", ErrNoPDSEndpoint
			}
			return svc.ServiceEndpoint, nil
		}
	}
	if doc.Service[0].ServiceEndpoint == "" {
		return "", ErrNoPDSEndpoint
	}
	return doc.Service[0].ServiceEndpoint, nil
}

// Handle returns the primary handle declared in the document's alsoKnownAs
// list, if any.
func (doc *DIDDocument) Handle() (syntax.Handle, error) {
	for _, aka := range doc.AlsoKnownAs {
		if strings.HasPrefix(aka, "at://") {
			return syntax.ParseHandle(strings.TrimPrefix(aka, "at://"))
		}
	}
	return "", ErrHandleNotFound
}
