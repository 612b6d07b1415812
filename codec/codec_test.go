package codec

import (
	"testing"
	"time"

	"github.com/ipfs/go-cid"
	cbornode "github.com/ipfs/go-ipld-cbor"
	mh "github.com/multiformats/go-multihash"
	"github.com/stretchr/testify/require"
)

func fakeCid(t *testing.T, seed byte) cid.Cid {
	t.Helper()
	sum, err := mh.Sum([]byte{seed}, mh.SHA2_256, -1)
	require.NoError(t, err)
	return cid.NewCidV1(cid.Raw, sum)
}

func TestPayloadRoundTrip(t *testing.T) {
	p := Payload{
		MIME:      "text/plain; charset=utf-8",
		Timestamp: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Content:   fakeCid(t, 1),
	}

	block, _, err := EncodePayload(p)
	require.NoError(t, err)

	got, err := DecodePayload(block)
	require.NoError(t, err)
	require.True(t, p.Content.Equals(got.Content))
	require.Equal(t, p.MIME, got.MIME)
	require.True(t, p.Timestamp.Equal(got.Timestamp))
}

func TestNodeRoundTrip(t *testing.T) {
	n := Node{
		Version: ProtocolVersion,
		Parents: []cid.Cid{fakeCid(t, 2), fakeCid(t, 3)},
		Payload: fakeCid(t, 4),
	}

	block, c, err := EncodeNode(n)
	require.NoError(t, err)
	require.True(t, c.Defined())

	got, err := DecodeNode(block)
	require.NoError(t, err)
	require.Equal(t, n.Version, got.Version)
	require.Len(t, got.Parents, 2)
	require.True(t, n.Parents[0].Equals(got.Parents[0]))
	require.True(t, n.Parents[1].Equals(got.Parents[1]))
	require.True(t, n.Payload.Equals(got.Payload))
}

func TestEncodeNodeIsDeterministic(t *testing.T) {
	n := Node{Version: ProtocolVersion, Parents: nil, Payload: fakeCid(t, 9)}

	block1, cid1, err := EncodeNode(n)
	require.NoError(t, err)
	block2, cid2, err := EncodeNode(n)
	require.NoError(t, err)

	require.Equal(t, block1, block2)
	require.True(t, cid1.Equals(cid2))
}

func TestEncodeNodeRejectsDuplicateParents(t *testing.T) {
	dup := fakeCid(t, 5)
	n := Node{Version: ProtocolVersion, Parents: []cid.Cid{dup, dup}, Payload: fakeCid(t, 6)}

	_, _, err := EncodeNode(n)
	require.ErrorIs(t, err, ErrDuplicateParent)
}

func TestDecodeNodeRejectsMissingPayload(t *testing.T) {
	block, err := cbornode.WrapObject(struct {
		Version string    `json:"version"`
		Parents []cid.Cid `json:"parents"`
	}{Version: "0", Parents: nil}, mh.SHA2_256, -1)
	require.NoError(t, err)

	_, err = DecodeNode(block.RawData())
	require.Error(t, err)
	var bad *ErrBadEncoding
	require.ErrorAs(t, err, &bad)
	require.Equal(t, "payload", bad.Field)
}
