package model

import (
	"xdao.co/nftcard/card"
	"xdao.co/nftcard/cardsvc"
	"xdao.co/nftcard/publisher"
	"xdao.co/nftcard/resolver"
)

// PublishResponse describes content written by POST /api/metadata.
type PublishResponse struct {
	MetadataURI     string        `json:"metadataUri"`
	MetadataLocator string        `json:"metadataLocator"`
	ImageURI        string        `json:"imageUri"`
	Metadata        card.Metadata `json:"metadata"`
}

// MintResponse describes a confirmed mint.
type MintResponse struct {
	TokenID     string          `json:"tokenId"`
	TxHash      string          `json:"txHash"`
	BlockNumber uint64          `json:"blockNumber"`
	Publication PublishResponse `json:"publication"`
}

type CardList struct {
	Count int             `json:"count"`
	Cards []resolver.Card `json:"cards"`
}

type ErrorResponse struct {
	Error     *CodedError `json:"error"`
	RequestID string      `json:"requestId,omitempty"`
}

type Health struct {
	Status   string `json:"status"`
	Contract string `json:"contract,omitempty"`
	Network  string `json:"network,omitempty"`
}

func FromPublication(p *publisher.Publication) PublishResponse {
	if p == nil {
		return PublishResponse{}
	}
	return PublishResponse{
		MetadataURI:     p.MetadataURI,
		MetadataLocator: p.MetadataLocator.String(),
		ImageURI:        p.ImageURI,
		Metadata:        p.Metadata,
	}
}

func FromMinted(m *cardsvc.Minted) MintResponse {
	out := MintResponse{
		TxHash:      m.TxHash.Hex(),
		BlockNumber: m.BlockNumber,
		Publication: FromPublication(m.Publication),
	}
	if m.TokenID != nil {
		out.TokenID = m.TokenID.String()
	}
	return out
}

// NewCardList never encodes a null card array.
func NewCardList(cards []resolver.Card) CardList {
	if cards == nil {
		cards = []resolver.Card{}
	}
	return CardList{Count: len(cards), Cards: cards}
}
