package credential

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/skip2/go-qrcode"

	"github.com/mhm-assoc/memberpass/internal/models"
)

// QR rendering parameters. High error correction keeps cards
// scannable when printed small or slightly damaged.
const qrPixelSize = 512

// Payload is the wire format serialized into the QR code. MemberID,
// Signature and Validity are mandatory at parse time; the rest is
// display text that verification never trusts.
type Payload struct {
	MemberID    string `json:"memberId"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Association string `json:"association"`
	Validity    string `json:"validity"`
	Status      string `json:"status"`
	Signature   string `json:"signature"`
}

// Encoder builds signed card payloads and renders them as QR images.
type Encoder struct {
	signer      *Signer
	association string
}

// NewEncoder creates an Encoder bound to one issuer tag.
func NewEncoder(signer *Signer, association string) *Encoder {
	return &Encoder{signer: signer, association: association}
}

// CurrentValidity returns the default validity period: the current
// calendar year as a string.
func CurrentValidity() string {
	return strconv.Itoa(time.Now().Year())
}

// Encode builds the signed payload for a member. An empty validity
// defaults to the current calendar year.
func (e *Encoder) Encode(m *models.Member, validity string) (Payload, error) {
	number := m.Number()
	if number == "" {
		return Payload{}, fmt.Errorf("member %s has no member number; cards are only issued after approval", m.ID)
	}
	if validity == "" {
		validity = CurrentValidity()
	}

	return Payload{
		MemberID:    number,
		Name:        m.DisplayName(),
		Email:       m.Email,
		Association: e.association,
		Validity:    validity,
		Status:      m.StatusLabel(),
		Signature:   e.signer.Sign(number, validity),
	}, nil
}

// Render serializes the payload and renders it twice: a data URI for
// inline embedding (emails, admin UI) and the raw PNG for storage or
// attachment.
func (e *Encoder) Render(p Payload) (dataURI string, png []byte, err error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", nil, fmt.Errorf("failed to serialize card payload: %w", err)
	}

	png, err = qrcode.Encode(string(raw), qrcode.High, qrPixelSize)
	if err != nil {
		return "", nil, fmt.Errorf("failed to render card QR: %w", err)
	}

	dataURI = "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
	return dataURI, png, nil
}

// ParsePayload decodes a scanned payload string. It fails when the
// JSON is malformed or any of the mandatory fields is missing.
func ParsePayload(raw string) (Payload, error) {
	var p Payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return Payload{}, fmt.Errorf("payload is not valid JSON: %w", err)
	}
	if p.MemberID == "" || p.Signature == "" || p.Validity == "" {
		return Payload{}, fmt.Errorf("payload is missing required fields (memberId, signature, validity)")
	}
	return p, nil
}
