package ptree

import (
	"encoding/binary"
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/spacemeshos/gluon/common/types"
	"github.com/spacemeshos/gluon/hash"
)

func genLeaves(n int) []types.Hash32 {
	out := make([]types.Hash32, n)
	for i := range out {
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], uint64(i))
		out[i] = types.CalcTxHash(b[:])
	}
	return out
}

func fold(t *Tree) types.Hash32 {
	for !t.Folded() {
		t.AddLevel()
	}
	if t.Width() == 0 {
		return types.EmptyHash32
	}
	return t.Values()[0]
}

func TestFromLeavesPadding(t *testing.T) {
	even := FromLeaves(genLeaves(4))
	require.Equal(t, 4, even.Width())

	odd := FromLeaves(genLeaves(5))
	require.Equal(t, 6, odd.Width())
	require.Equal(t, types.EmptyHash32, odd.Values()[5])
	require.Equal(t, genLeaves(5), odd.Leaves())
	require.Len(t, odd.Pairs(), 3)
}

func TestAddLevel(t *testing.T) {
	leaves := genLeaves(6)
	tree := FromLeaves(leaves)
	tree.AddLevel()
	require.Equal(t, 3, tree.Width())
	require.Equal(t, types.Hash32(hash.Sum(leaves[0][:], leaves[1][:])), tree.Values()[0])
	require.Len(t, tree.Pairs(), 1)

	tree.AddLevel()
	require.Equal(t, 2, tree.Width())
	tree.AddLevel()
	require.True(t, tree.Folded())
	require.Equal(t, leaves, tree.Leaves())
}

func TestRoot(t *testing.T) {
	require.Equal(t, types.EmptyHash32, FromLeaves(nil).Root())

	for _, n := range []int{1, 2, 3, 7, 8, 33, 100} {
		leaves := genLeaves(n)
		tree := FromLeaves(leaves)
		root := tree.Root()
		require.Equal(t, root, FromLeaves(leaves).Root())
		require.Equal(t, root, RootOf(leaves))
		require.Equal(t, root, fold(tree), "n=%d", n)
		require.Equal(t, root, tree.Root())
	}
}

func TestRootDependsOnOrder(t *testing.T) {
	leaves := genLeaves(16)
	root := RootOf(leaves)
	for i := 0; i < len(leaves); i++ {
		for j := i + 1; j < len(leaves); j++ {
			swapped := append([]types.Hash32{}, leaves...)
			swapped[i], swapped[j] = swapped[j], swapped[i]
			require.NotEqual(t, root, RootOf(swapped), "swap %d %d", i, j)
		}
	}
}

func TestRootDoesNotMutate(t *testing.T) {
	tree := FromLeaves(genLeaves(9))
	before := tree.Values()
	tree.Root()
	require.Equal(t, before, tree.Values())
}

func TestReconcileOrderSinglePair(t *testing.T) {
	leaves := genLeaves(4)
	tree := FromLeaves([]types.Hash32{leaves[1], leaves[0], leaves[2], leaves[3]})
	require.NoError(t, tree.ReconcileOrder([]Pair{{leaves[0], leaves[1]}}))
	require.Equal(t, leaves, tree.Values())
}

func TestReconcileOrderNoop(t *testing.T) {
	tree := FromLeaves(genLeaves(4))
	before := tree.Values()
	require.NoError(t, tree.ReconcileOrder(nil))
	require.Equal(t, before, tree.Values())
}

func TestReconcileOrderErrors(t *testing.T) {
	leaves := genLeaves(4)
	tree := FromLeaves(leaves)
	before := tree.Values()

	unknown := types.CalcTxHash([]byte("unknown"))
	require.ErrorIs(t, tree.ReconcileOrder([]Pair{{unknown, leaves[0]}}), ErrUnknownValue)

	// one correct pair touching two local pairs
	require.ErrorIs(t, tree.ReconcileOrder([]Pair{{leaves[1], leaves[2]}}), ErrPairMismatch)
	require.Equal(t, before, tree.Values())

	tree.AddLevel()
	tree.top = append(tree.top, null())
	require.ErrorIs(t, tree.ReconcileOrder([]Pair{{leaves[0], leaves[1]}}), ErrPairMismatch)
}

// missingPairs returns sender pairs that the receiver does not have.
func missingPairs(sender, receiver *Tree) []Pair {
	have := make(map[Pair]struct{})
	for _, p := range receiver.Pairs() {
		have[p] = struct{}{}
	}
	var out []Pair
	for _, p := range sender.Pairs() {
		if _, ok := have[p]; !ok {
			out = append(out, p)
		}
	}
	return out
}

func converge(t *testing.T, senderLeaves, receiverLeaves []types.Hash32) {
	t.Helper()
	sender := FromLeaves(senderLeaves)
	receiver := FromLeaves(receiverLeaves)
	root := sender.Root()
	for !sender.Folded() {
		sender.Pad()
		receiver.Pad()
		require.Equal(t, sender.Width(), receiver.Width())
		require.NoError(t, receiver.ReconcileOrder(missingPairs(sender, receiver)))
		require.Empty(t, missingPairs(sender, receiver))
		sender.AddLevel()
		receiver.AddLevel()
	}
	require.True(t, receiver.Folded())
	require.Equal(t, root, receiver.Root())
	if diff := cmp.Diff(senderLeaves, receiver.Leaves()); diff != "" {
		t.Fatalf("leaves differ (-want +got):\n%s", diff)
	}
}

func TestReconcileOrderRotation(t *testing.T) {
	leaves := genLeaves(2048)
	rotated := append(append([]types.Hash32{}, leaves[30:]...), leaves[:30]...)
	converge(t, leaves, rotated)
}

func TestReconcileOrderRandomPermutations(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for _, n := range []int{2, 3, 5, 8, 17, 64, 127, 500, 1025} {
		for round := 0; round < 5; round++ {
			leaves := genLeaves(n)
			permuted := append([]types.Hash32{}, leaves...)
			rng.Shuffle(len(permuted), func(i, j int) {
				permuted[i], permuted[j] = permuted[j], permuted[i]
			})
			converge(t, leaves, permuted)
		}
	}
}

func TestReconcileOrderLocalSwaps(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	leaves := genLeaves(999)
	permuted := append([]types.Hash32{}, leaves...)
	for i := 0; i < 20; i++ {
		a := rng.IntN(len(permuted))
		b := rng.IntN(len(permuted))
		permuted[a], permuted[b] = permuted[b], permuted[a]
	}
	converge(t, leaves, permuted)
}
