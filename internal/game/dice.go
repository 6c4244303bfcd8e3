package game

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"
)

// DieSides is the canonical die: values 1..6.
const DieSides = 6

// Dice produces die values.
type Dice interface {
	Roll() (int, error)
}

// CryptoDie draws uniformly from 1..Sides using crypto/rand.
type CryptoDie struct{ Sides int }

// NewCryptoDie returns the canonical six-sided die.
func NewCryptoDie() CryptoDie { return CryptoDie{Sides: DieSides} }

func (d CryptoDie) Roll() (int, error) {
	sides := d.Sides
	if sides <= 0 {
		sides = DieSides
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(sides)))
	if err != nil {
		return 0, fmt.Errorf("read die value: %w", err)
	}
	return int(n.Int64()) + 1, nil
}

// FixedDice replays values in order; used by tests and scenario tooling.
type FixedDice struct {
	Values []int

	mu   sync.Mutex
	next int
}

func (f *FixedDice) Roll() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Values) == 0 {
		return 0, fmt.Errorf("fixed dice: no values")
	}
	v := f.Values[f.next%len(f.Values)]
	f.next++
	return v, nil
}
