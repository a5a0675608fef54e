// Package allowlist builds the Merkle tree whose root gates allowlist mints
// and hands out the inclusion proof for each member.
package allowlist

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"mintgate.io/internal/campaign"
)

// Tree is a sorted-pair keccak tree over member leaves, in input order. An
// odd node at the end of a layer moves up unchanged.
type Tree struct {
	members []common.Address
	layers  [][]common.Hash
	index   map[common.Address]int
}

func Build(members []common.Address) (*Tree, error) {
	if len(members) == 0 {
		return nil, errors.New("allowlist is empty")
	}
	leaves := make([]common.Hash, len(members))
	index := make(map[common.Address]int, len(members))
	for i, m := range members {
		leaves[i] = campaign.LeafFor(m)
		if _, dup := index[m]; !dup {
			index[m] = i
		}
	}
	layers := [][]common.Hash{leaves}
	for nodes := leaves; len(nodes) > 1; {
		next := make([]common.Hash, 0, (len(nodes)+1)/2)
		for i := 0; i < len(nodes); i += 2 {
			if i+1 == len(nodes) {
				next = append(next, nodes[i])
				continue
			}
			next = append(next, campaign.HashPair(nodes[i], nodes[i+1]))
		}
		layers = append(layers, next)
		nodes = next
	}
	return &Tree{members: append([]common.Address(nil), members...), layers: layers, index: index}, nil
}

func (t *Tree) Root() common.Hash {
	top := t.layers[len(t.layers)-1]
	return top[0]
}

func (t *Tree) Members() []common.Address {
	return append([]common.Address(nil), t.members...)
}

// Proof returns the sibling path of addr, bottom up. A duplicated member gets
// the proof of its first occurrence.
func (t *Tree) Proof(addr common.Address) ([]common.Hash, error) {
	idx, ok := t.index[addr]
	if !ok {
		return nil, fmt.Errorf("%s is not in the allowlist", addr.Hex())
	}
	var proof []common.Hash
	for _, layer := range t.layers[:len(t.layers)-1] {
		pair := idx ^ 1
		if pair < len(layer) {
			proof = append(proof, layer[pair])
		}
		idx /= 2
	}
	return proof, nil
}
