// Copyright 2017 Cameron Bergoon
// https://github.com/cbergoon/merkletree
// Licensed under the MIT License, see LICENCE file for details.

package merkle_test

import (
	"bytes"
	"crypto/md5"
	"crypto/sha256"
	"testing"

	"github.com/ancourn/kaldr1-sub002/foundation/ledger/merkle"
)

// Data uses the sha256 hashing algorithm for the merkle tree.
type Data struct {
	x string
}

// Hash hashes the value using sha256.
func (d Data) Hash() ([]byte, error) {
	h := sha256.New()
	if _, err := h.Write([]byte(d.x)); err != nil {
		return nil, err
	}

	return h.Sum(nil), nil
}

// Equals tests for equality of two pieces of data.
func (d Data) Equals(other Data) bool {
	return d.x == other.x
}

// =============================================================================

// MD5Data uses the md5 hashing algorithm for the merkle tree.
type MD5Data struct {
	x string
}

// Hash hashes the value using md5.
func (d MD5Data) Hash() ([]byte, error) {
	h := md5.New()
	if _, err := h.Write([]byte(d.x)); err != nil {
		return nil, err
	}

	return h.Sum(nil), nil
}

// Equals tests for equality of two pieces of data.
func (d MD5Data) Equals(other MD5Data) bool {
	return d.x == other.x
}

// =============================================================================

func sha(parts ...[]byte) []byte {
	h := sha256.New()
	for _, part := range parts {
		h.Write(part)
	}
	return h.Sum(nil)
}

func leaf(x string) []byte {
	return sha([]byte(x))
}

func Test_TreeRoot(t *testing.T) {
	type table struct {
		name string
		data []Data
		root []byte
	}

	tt := []table{
		{
			name: "single leaf duplicates",
			data: []Data{{"alpha"}},
			root: sha(leaf("alpha"), leaf("alpha")),
		},
		{
			name: "two leaves",
			data: []Data{{"alpha"}, {"beta"}},
			root: sha(leaf("alpha"), leaf("beta")),
		},
		{
			name: "odd leaves duplicate the last",
			data: []Data{{"alpha"}, {"beta"}, {"gamma"}},
			root: sha(
				sha(leaf("alpha"), leaf("beta")),
				sha(leaf("gamma"), leaf("gamma")),
			),
		},
		{
			name: "two levels",
			data: []Data{{"alpha"}, {"beta"}, {"gamma"}, {"delta"}},
			root: sha(
				sha(leaf("alpha"), leaf("beta")),
				sha(leaf("gamma"), leaf("delta")),
			),
		},
	}

	for _, tst := range tt {
		t.Run(tst.name, func(t *testing.T) {
			tree, err := merkle.NewTree(tst.data)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !bytes.Equal(tree.MerkleRoot, tst.root) {
				t.Errorf("expected root %v got %v", tst.root, tree.MerkleRoot)
			}
			if err := tree.Verify(); err != nil {
				t.Errorf("expected tree to verify: %v", err)
			}
		})
	}
}

func Test_NewTreeEmpty(t *testing.T) {
	if _, err := merkle.NewTree([]Data{}); err == nil {
		t.Error("expected error constructing a tree with no content")
	}
}

func Test_Proof(t *testing.T) {
	data := []Data{{"alpha"}, {"beta"}, {"gamma"}, {"delta"}}

	tree, err := merkle.NewTree(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, d := range data {
		proof, order, err := tree.Proof(d)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		// Walking the proof in order must reproduce the merkle root.
		current, err := d.Hash()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for i := range proof {
			if order[i] == 1 {
				current = sha(current, proof[i])
			} else {
				current = sha(proof[i], current)
			}
		}

		if !bytes.Equal(current, tree.MerkleRoot) {
			t.Errorf("expected proof for %q to reproduce the root", d.x)
		}
	}

	if _, _, err := tree.Proof(Data{"unknown"}); err == nil {
		t.Error("expected error proving data not in the tree")
	}
}

func Test_VerifyData(t *testing.T) {
	data := []Data{{"alpha"}, {"beta"}, {"gamma"}}

	tree, err := merkle.NewTree(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, d := range data {
		if err := tree.VerifyData(d); err != nil {
			t.Errorf("expected %q to verify: %v", d.x, err)
		}
	}

	if err := tree.VerifyData(Data{"unknown"}); err == nil {
		t.Error("expected error verifying data not in the tree")
	}

	tree.MerkleRoot = []byte{1}
	if err := tree.Verify(); err == nil {
		t.Error("expected a tampered root to fail verification")
	}
}

func Test_Rebuild(t *testing.T) {
	tree, err := merkle.NewTree([]Data{{"alpha"}, {"beta"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	root := make([]byte, len(tree.MerkleRoot))
	copy(root, tree.MerkleRoot)

	if err := tree.Rebuild(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(tree.MerkleRoot, root) {
		t.Error("expected rebuild to reproduce the root")
	}

	if err := tree.Generate([]Data{{"gamma"}, {"delta"}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bytes.Equal(tree.MerkleRoot, root) {
		t.Error("expected new data to change the root")
	}
}

func Test_Values(t *testing.T) {
	data := []Data{{"alpha"}, {"beta"}, {"gamma"}}

	tree, err := merkle.NewTree(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	values := tree.Values()
	if len(values) != len(data) {
		t.Fatalf("expected %d values got %d", len(data), len(values))
	}
	for i := range values {
		if !values[i].Equals(data[i]) {
			t.Errorf("expected value %d to be %q got %q", i, data[i].x, values[i].x)
		}
	}
}

func Test_WithHashStrategy(t *testing.T) {
	tree, err := merkle.NewTree([]MD5Data{{"alpha"}, {"beta"}}, merkle.WithHashStrategy[MD5Data](md5.New))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ha := md5.Sum([]byte("alpha"))
	hb := md5.Sum([]byte("beta"))

	h := md5.New()
	h.Write(ha[:])
	h.Write(hb[:])

	if !bytes.Equal(tree.MerkleRoot, h.Sum(nil)) {
		t.Error("expected the configured strategy to hash the nodes")
	}
	if err := tree.Verify(); err != nil {
		t.Errorf("expected tree to verify: %v", err)
	}
}
