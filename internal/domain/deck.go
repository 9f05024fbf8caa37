package domain

import "time"

// EncryptedCard is one deck position encrypted to a single recipient.
type EncryptedCard struct {
	Ciphertext    []byte
	Recipient     string
	ProofFragment []byte
}

// EncryptedDeck is a shuffled deck with every card encrypted to its
// recipient. Community cards are addressed to the table.
type EncryptedDeck struct {
	TableID    string
	Commitment [32]byte
	Cards      []EncryptedCard
	Proof      *Proof
}

// Showdown is the full reveal of a deck with its consistency proof.
type Showdown struct {
	TableID    string
	Commitment [32]byte
	Cards      []Card
	Proof      *Proof
}

// HandRecord is the archived form of a finished hand. DeckLedger and
// ShowdownLedger carry the binary encodings submitted to the on-chain program.
type HandRecord struct {
	TableID        string
	HandNumber     uint64
	Protocol       string
	Participants   []string
	Deck           EncryptedDeck
	Showdown       Showdown
	DeckLedger     []byte
	ShowdownLedger []byte
	FinishedAt     time.Time
}
