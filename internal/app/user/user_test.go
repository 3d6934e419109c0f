package user_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callingcard/internal/app/user"
)

func mustUser(t *testing.T, name, email, photo string) user.User {
	t.Helper()
	u, err := user.New(name, email, photo)
	require.NoError(t, err)
	return u
}

func TestEncodeDecode_PhotoURLAsString(t *testing.T) {
	u := mustUser(t, "Ada", "ada@example.com", "https://cdn.example.com/ada.png")

	payload, err := user.Encode(u)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Ada","emailAddress":"ada@example.com","photoUrl":"https://cdn.example.com/ada.png"}`, string(payload))

	decoded, err := user.Decode(payload)
	require.NoError(t, err)
	assert.True(t, u.Equal(decoded))
}

func TestDecode_AllowsTrailingWhitespace(t *testing.T) {
	decoded, err := user.Decode([]byte("{\"name\":\"Ada\",\"emailAddress\":\"ada@example.com\"}\n \t"))
	require.NoError(t, err)
	assert.Equal(t, "Ada", decoded.Name)
}

func TestEncode_OmitsMissingPhoto(t *testing.T) {
	payload, err := user.Encode(mustUser(t, "Bob", "bob@example.com", ""))
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Bob","emailAddress":"bob@example.com"}`, string(payload))
}

func TestDecode_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{name: "Unknown field only", payload: `{"bogus":true}`},
		{name: "Unknown field alongside valid ones", payload: `{"name":"A","emailAddress":"a@x.io","bogus":1}`},
		{name: "Missing email", payload: `{"name":"A"}`},
		{name: "Empty name", payload: `{"name":"","emailAddress":"a@x.io"}`},
		{name: "Not JSON", payload: `hello`},
		{name: "Trailing data", payload: `{"name":"A","emailAddress":"a@x.io"} {}`},
		{name: "Trailing closing brace", payload: `{"name":"A","emailAddress":"a@x.io"}}`},
		{name: "Trailing closing bracket", payload: `{"name":"A","emailAddress":"a@x.io"}]`},
		{name: "Trailing word", payload: `{"name":"A","emailAddress":"a@x.io"} x`},
		{name: "Wrong type", payload: `{"name":1,"emailAddress":"a@x.io"}`},
		{name: "Bad photo URL", payload: `{"name":"A","emailAddress":"a@x.io","photoUrl":"http://[::1"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := user.Decode([]byte(tt.payload))
			assert.Error(t, err)
		})
	}
}

func TestEqual(t *testing.T) {
	a := mustUser(t, "Ada", "ada@example.com", "https://x.io/a.png")

	assert.True(t, a.Equal(mustUser(t, "Ada", "ada@example.com", "https://x.io/a.png")))
	assert.False(t, a.Equal(mustUser(t, "Ada", "ada@example.com", "")))
	assert.False(t, a.Equal(mustUser(t, "Ada L", "ada@example.com", "https://x.io/a.png")))
	assert.False(t, a.Equal(mustUser(t, "Ada", "ada@example.org", "https://x.io/a.png")))
}

func TestValid(t *testing.T) {
	assert.True(t, user.User{Name: "A", EmailAddress: "a@x.io"}.Valid())
	assert.False(t, user.User{Name: " ", EmailAddress: "a@x.io"}.Valid())
	assert.False(t, user.User{Name: "A"}.Valid())
}

func TestValidEmail(t *testing.T) {
	assert.True(t, user.User{EmailAddress: "a@x.io"}.ValidEmail())
	assert.False(t, user.User{EmailAddress: "Ada <a@x.io>"}.ValidEmail())
	assert.False(t, user.User{EmailAddress: "nope"}.ValidEmail())
}

func TestEncodeDecodeList(t *testing.T) {
	users := []user.User{
		mustUser(t, "Ada", "ada@example.com", ""),
		mustUser(t, "Bob", "bob@example.com", "https://x.io/b.png"),
	}

	data, err := user.EncodeList(users)
	require.NoError(t, err)

	decoded, err := user.DecodeList(data)
	require.NoError(t, err)
	require.Len(t, decoded, 2)
	assert.True(t, users[0].Equal(decoded[0]))
	assert.True(t, users[1].Equal(decoded[1]))

	empty, err := user.EncodeList(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(empty))
}
