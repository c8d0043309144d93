package resolver

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"xdao.co/nftcard/card"
)

type Status string

const (
	StatusOK       Status = "ok"
	StatusLoading  Status = "loading"
	StatusDegraded Status = "degraded"
)

// Degradation reasons. They are deliberately coarse; Card.Detail carries
// the precise cause (HTTP status, timeout, JSON error).
const (
	ReasonFetchFailed      = "fetch failed"
	ReasonParseFailed      = "parse failed"
	ReasonUnsupported      = "unsupported locator"
	ReasonIntegrityFailure = "integrity check failed"
)

// OnChain is the ledger's view of a token: the minimal fields stored by the
// contract plus the token URI.
type OnChain struct {
	TokenID     *big.Int
	Name        string
	Description string
	Creator     common.Address
	Owner       common.Address
	CreatedAt   time.Time
	MetadataURI string
}

// Card is a render-ready token. Identity fields always come from the
// ledger; rich fields come from the metadata record when it resolved.
type Card struct {
	TokenID     string    `json:"tokenId"`
	Creator     string    `json:"creator"`
	Owner       string    `json:"owner,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	MetadataURI string    `json:"metadataUri"`
	// CreatorName is the display name stored on-chain.
	CreatorName string `json:"creatorName"`

	Name        string           `json:"name"`
	Description string           `json:"description"`
	Image       string           `json:"image,omitempty"`
	Attributes  []card.Attribute `json:"attributes,omitempty"`
	ExternalURL string           `json:"externalUrl,omitempty"`

	// FallbackImage is shown when Image is empty or fails to load. It is a
	// presentation concern and says nothing about Status.
	FallbackImage string `json:"fallbackImage"`
	ExplorerURL   string `json:"explorerUrl,omitempty"`

	Status Status `json:"status"`
	Reason string `json:"reason,omitempty"`
	Detail string `json:"detail,omitempty"`
}

func (c Card) OK() bool       { return c.Status == StatusOK }
func (c Card) Degraded() bool { return c.Status == StatusDegraded }
