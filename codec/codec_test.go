package codec

import (
	"encoding/base64"
	"testing"

	"github.com/layer-3/paygate/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleIntent() *core.PaymentIntent {
	return &core.PaymentIntent{
		Version:    "1",
		Network:    "solana:devnet",
		Payer:      "PayerKey111",
		Recipient:  "RecipientKey222",
		Token:      "USDC",
		Amount:     "10000",
		ValidUntil: 1760000000000,
		Nonce:      "n-1",
		Memo:       "rent:plot-7:3days",
		Signature:  "sig",
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	intents := []*core.PaymentIntent{
		sampleIntent(),
		{Amount: "0"},
		{
			Version: "1", Network: "eip155:8453", Payer: "0xabc", Recipient: "0xdef",
			Token: "0x036C", Amount: "340282366920938463463374607431768211456",
			ValidUntil: 1, Nonce: "ünïcode", Memo: "entry:<room&1>", Signature: "0x01",
		},
	}

	for _, intent := range intents {
		encoded, err := Encode(intent)
		require.NoError(t, err)

		decoded := Decode(encoded)
		require.NotNil(t, decoded)
		assert.Equal(t, intent, decoded)
	}
}

func TestEncodeIsCanonical(t *testing.T) {
	encoded, err := Encode(sampleIntent())
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)

	expected := `{"version":"1","network":"solana:devnet","payer":"PayerKey111","recipient":"RecipientKey222",` +
		`"token":"USDC","amount":"10000","validUntil":1760000000000,"nonce":"n-1","memo":"rent:plot-7:3days","signature":"sig"}`
	assert.Equal(t, expected, string(raw))
}

func TestSigningBytesExcludeSignature(t *testing.T) {
	a := sampleIntent()
	b := sampleIntent()
	b.Signature = "different"

	assert.Equal(t, SigningBytes(a), SigningBytes(b))
	assert.NotContains(t, string(SigningBytes(a)), "signature")

	b.Amount = "10001"
	assert.NotEqual(t, SigningBytes(a), SigningBytes(b))
}

func TestDecodeMalformed(t *testing.T) {
	b64 := func(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }

	cases := map[string]string{
		"not base64":      "%%%not-base64%%%",
		"not json":        b64("hello"),
		"wrong type":      b64(`{"amount":"1","validUntil":"soon"}`),
		"negative amount": b64(`{"amount":"-5","validUntil":1}`),
		"decimal amount":  b64(`{"amount":"1.5","validUntil":1}`),
		"missing amount":  b64(`{"validUntil":1}`),
		"empty string":    "",
		"json array":      b64(`[1,2,3]`),
		"exponent amount": b64(`{"amount":"1e3","validUntil":1}`),
		"numeric amount":  b64(`{"amount":100,"validUntil":1}`),
	}

	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Nil(t, Decode(input))
		})
	}
}
