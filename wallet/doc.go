// Package wallet is a local-first key store for the accounts that sign
// ledger transactions.
//
// Keys are secp256k1 private keys stored hex-encoded on the filesystem, one
// root key per identifier plus any number of role keys derived from it. An
// Account loaded from the store supplies the active address and a
// transaction signer for the card contract.
package wallet
