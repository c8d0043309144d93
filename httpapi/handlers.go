package httpapi

import (
	"errors"
	"io"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"xdao.co/nftcard/avatar"
	"xdao.co/nftcard/card"
	"xdao.co/nftcard/ledger"
	"xdao.co/nftcard/model"
	"xdao.co/nftcard/resolver"
)

func invalid(msg string) error { return model.NewError(model.ErrInvalidRequest, msg) }

func parseAddress(s, field string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, invalid(field + " must be a hex address")
	}
	return common.HexToAddress(s), nil
}

// readInput decodes the multipart mint form: name, description and an
// optional avatar file.
func (h *handler) readInput(c *gin.Context) (card.Input, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxUploadBytes)
	if err := c.Request.ParseMultipartForm(h.MaxUploadBytes); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return card.Input{}, invalid("upload exceeds size limit")
		}
		return card.Input{}, invalid("malformed form: " + err.Error())
	}
	in := card.Input{
		DisplayName: c.PostForm("name"),
		Bio:         c.PostForm("description"),
	}
	fh, err := c.FormFile("avatar")
	switch {
	case errors.Is(err, http.ErrMissingFile):
		return in, nil
	case err != nil:
		return in, invalid("avatar: " + err.Error())
	}
	f, err := fh.Open()
	if err != nil {
		return in, invalid("avatar: " + err.Error())
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return in, invalid("avatar: " + err.Error())
	}
	in.Avatar = &card.Blob{Data: data, MIMEType: fh.Header.Get("Content-Type")}
	return in, nil
}

func (h *handler) mint(c *gin.Context) {
	if h.Account == nil || h.Cards == nil {
		h.fail(c, card.WrapError(card.KindLedger, "mint", ledger.ErrNoSigner))
		return
	}
	in, err := h.readInput(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	m, err := h.Cards.Mint(c.Request.Context(), in, h.Account.Address())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, model.FromMinted(m))
}

func (h *handler) publish(c *gin.Context) {
	in, err := h.readInput(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	creator, err := parseAddress(c.PostForm("creator"), "creator")
	if err != nil {
		h.fail(c, err)
		return
	}
	pub, err := h.Publisher.Publish(c.Request.Context(), in, creator)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, model.FromPublication(pub))
}

func (h *handler) ownedCards(c *gin.Context) {
	owner, err := parseAddress(c.Query("owner"), "owner")
	if err != nil {
		h.fail(c, err)
		return
	}
	cards, err := h.Cards.OwnedCards(c.Request.Context(), owner)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, model.NewCardList(cards))
}

func (h *handler) allCards(c *gin.Context) {
	cards, err := h.Cards.AllCards(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, model.NewCardList(cards))
}

func (h *handler) cardByID(c *gin.Context) {
	id, ok := new(big.Int).SetString(c.Param("id"), 10)
	if !ok || id.Sign() < 0 {
		h.fail(c, invalid("token id must be a non-negative integer"))
		return
	}
	out, err := h.Cards.Card(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// resolve renders an arbitrary token URI. Optional name and description
// stand in for the ledger fields.
func (h *handler) resolve(c *gin.Context) {
	uri := strings.TrimSpace(c.Query("uri"))
	if uri == "" {
		h.fail(c, invalid("uri is required"))
		return
	}
	oc := resolver.OnChain{
		Name:        c.Query("name"),
		Description: c.Query("description"),
		MetadataURI: uri,
	}
	c.JSON(http.StatusOK, h.Resolver.Resolve(c.Request.Context(), oc))
}

func (h *handler) defaultAvatar(c *gin.Context) {
	c.Header("Cache-Control", "public, max-age=86400")
	c.Data(http.StatusOK, avatar.MIMEType, avatar.SVG(c.Query("name")))
}

func (h *handler) fallbackAvatar(c *gin.Context) {
	c.Header("Cache-Control", "public, max-age=86400")
	c.Data(http.StatusOK, avatar.MIMEType, avatar.FallbackSVG(c.Query("name")))
}
