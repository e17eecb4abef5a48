// Package wallet holds the wallet-side state the provider consults: the
// chain registry, the accounts visible to sites, the selected chain, and
// the account-picker collaborator used by eth_requestAccounts.
//
// Keys and signing never live here.
package wallet
