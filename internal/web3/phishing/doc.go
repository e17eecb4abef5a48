// Package phishing checks URLs against a remote phishing list in the
// eth-phishing-detect format (whitelist, blacklist, fuzzylist). The list is
// refreshed lazily and the last good copy is cached on disk.
package phishing
