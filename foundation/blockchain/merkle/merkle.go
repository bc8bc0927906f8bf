// Copyright 2017 Cameron Bergoon
// https://github.com/cbergoon/merkletree
// Licensed under the MIT License, see LICENCE file for details.
// This code has been cleaned up, refactored, and turned into generics.

// Package merkle provides an implementation of a merkle tree used to commit
// to the transactions of a block.
package merkle

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"hash"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Hashable represents the behavior concrete data must exhibit to be used in
// the merkle tree.
type Hashable[T any] interface {
	Hash() ([]byte, error)
	Equals(other T) bool
}

// Tree represents a merkle tree over values of some type T.
type Tree[T Hashable[T]] struct {
	Root         *Node[T]
	Leafs        []*Node[T]
	MerkleRoot   []byte
	hashStrategy func() hash.Hash
}

// WithHashStrategy replaces the default sha256 hash strategy.
func WithHashStrategy[T Hashable[T]](hashStrategy func() hash.Hash) func(t *Tree[T]) {
	return func(t *Tree[T]) {
		t.hashStrategy = hashStrategy
	}
}

// NewTree constructs a new merkle tree over the values.
func NewTree[T Hashable[T]](values []T, options ...func(t *Tree[T])) (*Tree[T], error) {
	t := Tree[T]{
		hashStrategy: sha256.New,
	}

	for _, option := range options {
		option(&t)
	}

	if len(values) == 0 {
		return nil, errors.New("cannot construct tree with no content")
	}

	leafs := make([]*Node[T], 0, len(values)+1)
	for _, value := range values {
		h, err := value.Hash()
		if err != nil {
			return nil, err
		}
		leafs = append(leafs, &Node[T]{Hash: h, Value: value, leaf: true})
	}

	// An odd leaf is paired with itself.
	if len(leafs)%2 == 1 {
		last := leafs[len(leafs)-1]
		leafs = append(leafs, &Node[T]{Hash: last.Hash, Value: last.Value, leaf: true, dup: true})
	}

	root, err := t.build(leafs)
	if err != nil {
		return nil, err
	}

	t.Root = root
	t.Leafs = leafs
	t.MerkleRoot = root.Hash

	return &t, nil
}

// RootHex converts the merkle root byte hash to a hex encoded string.
func (t *Tree[T]) RootHex() string {
	return hexutil.Encode(t.MerkleRoot)
}

// Proof returns the sibling hashes from the leaf holding data up to the
// root. An order of 0 means the sibling is concatenated first, 1 means it
// is concatenated second.
func (t *Tree[T]) Proof(data T) ([][]byte, []int64, error) {
	for _, node := range t.Leafs {
		if node.dup || !node.Value.Equals(data) {
			continue
		}

		var proof [][]byte
		var order []int64
		for parent := node.Parent; parent != nil; parent = parent.Parent {
			if parent.Left == node {
				proof = append(proof, parent.Right.Hash)
				order = append(order, 1)
			} else {
				proof = append(proof, parent.Left.Hash)
				order = append(order, 0)
			}
			node = parent
		}

		return proof, order, nil
	}

	return nil, nil, errors.New("unable to find data in tree")
}

// VerifyProof folds the leaf hash through the proof and compares the result
// with the root.
func VerifyProof(leaf []byte, proof [][]byte, order []int64, root []byte) bool {
	if len(proof) != len(order) {
		return false
	}

	current := leaf
	for i, p := range proof {
		var sum [32]byte
		switch order[i] {
		case 0:
			sum = sha256.Sum256(append(append([]byte{}, p...), current...))
		default:
			sum = sha256.Sum256(append(append([]byte{}, current...), p...))
		}
		current = sum[:]
	}

	return bytes.Equal(current, root)
}

// =============================================================================

// Node represents a node, root, or leaf in the tree.
type Node[T Hashable[T]] struct {
	Parent *Node[T]
	Left   *Node[T]
	Right  *Node[T]
	Hash   []byte
	Value  T
	leaf   bool
	dup    bool
}

// build constructs the intermediate levels for the nodes and returns the
// root node.
func (t *Tree[T]) build(nl []*Node[T]) (*Node[T], error) {
	var nodes []*Node[T]

	for i := 0; i < len(nl); i += 2 {
		left, right := i, i+1
		if right == len(nl) {
			right = i
		}

		h := t.hashStrategy()
		if _, err := h.Write(append(append([]byte{}, nl[left].Hash...), nl[right].Hash...)); err != nil {
			return nil, err
		}

		n := Node[T]{
			Left:  nl[left],
			Right: nl[right],
			Hash:  h.Sum(nil),
		}

		nodes = append(nodes, &n)
		nl[left].Parent = &n
		nl[right].Parent = &n

		if len(nl) == 2 {
			return &n, nil
		}
	}

	return t.build(nodes)
}
