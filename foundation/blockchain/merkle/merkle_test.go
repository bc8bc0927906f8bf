package merkle_test

import (
	"crypto/sha256"
	"fmt"
	"testing"

	"github.com/ardanlabs/dposledger/foundation/blockchain/merkle"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

// Data uses the sha256 hashing algorithm for the merkle tree.
type Data struct {
	x string
}

// Hash hashes the values using sha256.
func (d Data) Hash() ([]byte, error) {
	h := sha256.Sum256([]byte(d.x))
	return h[:], nil
}

// Equals tests for equality of two piece of data.
func (d Data) Equals(other Data) bool {
	return d.x == other.x
}

// =============================================================================

func Test_Proofs(t *testing.T) {
	t.Log("Given the need to prove data is committed by a merkle root.")
	{
		for testID, size := range []int{1, 2, 3, 5, 8} {
			f := func(t *testing.T) {
				t.Logf("\tTest %d:\tWhen building a tree of %d values.", testID, size)
				{
					var values []Data
					for i := 0; i < size; i++ {
						values = append(values, Data{x: fmt.Sprintf("tx-%d", i)})
					}

					tree, err := merkle.NewTree(values)
					if err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould be able to build the tree: %v", failed, testID, err)
					}
					t.Logf("\t%s\tTest %d:\tShould be able to build the tree.", success, testID)

					for _, v := range values {
						proof, order, err := tree.Proof(v)
						if err != nil {
							t.Fatalf("\t%s\tTest %d:\tShould get a proof for %s: %v", failed, testID, v.x, err)
						}

						leaf, _ := v.Hash()
						if !merkle.VerifyProof(leaf, proof, order, tree.MerkleRoot) {
							t.Fatalf("\t%s\tTest %d:\tShould verify the proof for %s.", failed, testID, v.x)
						}
					}
					t.Logf("\t%s\tTest %d:\tShould verify every proof.", success, testID)

					other, _ := Data{x: "missing"}.Hash()
					proof, order, _ := tree.Proof(values[0])
					if size > 1 && merkle.VerifyProof(other, proof, order, tree.MerkleRoot) {
						t.Fatalf("\t%s\tTest %d:\tShould not verify foreign data.", failed, testID)
					}
					t.Logf("\t%s\tTest %d:\tShould not verify foreign data.", success, testID)

					again, _ := merkle.NewTree(values)
					if again.RootHex() != tree.RootHex() {
						t.Fatalf("\t%s\tTest %d:\tShould get the same root twice.", failed, testID)
					}
					t.Logf("\t%s\tTest %d:\tShould get the same root twice.", success, testID)
				}
			}

			t.Run(fmt.Sprintf("size-%d", size), f)
		}

		testID := 5
		t.Logf("\tTest %d:\tWhen building a tree with no values.", testID)
		{
			if _, err := merkle.NewTree([]Data{}); err == nil {
				t.Fatalf("\t%s\tTest %d:\tShould fail to build the tree.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould fail to build the tree.", success, testID)
		}
	}
}
