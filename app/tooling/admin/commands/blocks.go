package commands

import (
	"context"
	"fmt"
	"strconv"
)

// Blocks prints the stored blocks starting at the height.
func Blocks(dbPath string, from string) error {
	start := int64(1)
	if from != "" {
		n, err := strconv.ParseInt(from, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid height %q: %w", from, err)
		}
		start = n
	}

	db, err := openDB(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	for block, err := range db.Blocks(context.Background(), start) {
		if err != nil {
			return err
		}

		fmt.Printf("Height: %-8d Timestamp: %-10d Trans: %-4d Fee: %-12s ID: %s\n",
			block.Height, block.Timestamp, len(block.Transactions), block.TotalFee, block.ID)
	}

	return nil
}

// Round prints the delegates of a stored round, by default the last one.
func Round(dbPath string, number string) error {
	db, err := openDB(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	var round int64
	switch number {
	case "":
		for n := int64(1); ; n++ {
			if _, err := db.Round(n); err != nil {
				break
			}
			round = n
		}

	default:
		if round, err = strconv.ParseInt(number, 10, 64); err != nil {
			return fmt.Errorf("invalid round %q: %w", number, err)
		}
	}

	r, err := db.Round(round)
	if err != nil {
		return fmt.Errorf("round[%d]: %w", round, err)
	}

	fmt.Printf("Round: %d  Height: %d\n\n", r.Round, r.Height)
	for _, d := range r.Delegates {
		fmt.Printf("%3d  %-20s %-24s %s\n", d.Rank, d.Username, d.VoteBalance, d.PublicKey)
	}

	return nil
}
