package crypto

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bhandras/delight-chat/internal/chat"
)

func testKey() *[32]byte {
	var key [32]byte
	for i := range key {
		key[i] = byte(i)
	}
	return &key
}

func TestSealTextRoundtrip(t *testing.T) {
	key := testKey()

	sealed, err := SealText("hello, world", key)
	require.NoError(t, err)
	require.NotContains(t, sealed, "hello")

	raw, err := base64.StdEncoding.DecodeString(sealed)
	require.NoError(t, err)
	require.Len(t, raw, nonceSize+len("hello, world")+16)

	opened, err := OpenText(sealed, key)
	require.NoError(t, err)
	require.Equal(t, "hello, world", opened)
}

func TestSealUsesFreshNonce(t *testing.T) {
	key := testKey()
	a, err := SealText("same", key)
	require.NoError(t, err)
	b, err := SealText("same", key)
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestOpenRejectsTampering(t *testing.T) {
	key := testKey()
	sealed, err := Seal([]byte("payload"), key)
	require.NoError(t, err)

	sealed[len(sealed)-1] ^= 0xff
	_, err = Open(sealed, key)
	require.ErrorIs(t, err, ErrDecrypt)

	_, err = Open(sealed[:10], key)
	require.ErrorIs(t, err, ErrCiphertextTooShort)

	other, err := NewKey()
	require.NoError(t, err)
	good, err := Seal([]byte("payload"), key)
	require.NoError(t, err)
	_, err = Open(good, other)
	require.ErrorIs(t, err, ErrDecrypt)
}

func TestParseKey(t *testing.T) {
	key := testKey()
	parsed, err := ParseKey(base64.StdEncoding.EncodeToString(key[:]))
	require.NoError(t, err)
	require.Equal(t, key, parsed)

	_, err = ParseKey(base64.StdEncoding.EncodeToString([]byte("short")))
	require.Error(t, err)

	_, err = ParseKey("!!not base64!!")
	require.Error(t, err)
}

func TestSignerRoundtrip(t *testing.T) {
	signer := NewSigner("master-secret", "chat-test")
	alice := chat.User{ID: "alice", Name: "Alice", Image: "https://img/alice.png"}

	token, err := signer.Issue(alice, time.Hour)
	require.NoError(t, err)

	got, err := signer.Verify(token)
	require.NoError(t, err)
	require.Equal(t, alice, got)

	unverified, err := UserFromToken(token)
	require.NoError(t, err)
	require.Equal(t, alice, unverified)
}

func TestSignerRejectsForeignAndExpiredTokens(t *testing.T) {
	signer := NewSigner("master-secret", "chat-test")
	other := NewSigner("another-secret", "chat-test")

	token, err := other.Issue(chat.User{ID: "mallory"}, 0)
	require.NoError(t, err)
	_, err = signer.Verify(token)
	require.Error(t, err)

	expired, err := signer.Issue(chat.User{ID: "alice"}, time.Nanosecond)
	require.NoError(t, err)
	time.Sleep(1100 * time.Millisecond)
	_, err = signer.Verify(expired)
	require.Error(t, err)
}

func TestIssueRequiresSubject(t *testing.T) {
	_, err := NewSigner("s", "i").Issue(chat.User{Name: "nobody"}, 0)
	require.ErrorIs(t, err, ErrMissingSubject)

	_, err = UserFromToken("not-a-token")
	require.Error(t, err)
}
