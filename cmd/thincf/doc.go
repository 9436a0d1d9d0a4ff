// Package main (cmd/thincf) is the operator client of a thincf server.
//
//	thincf --server=https://cfg.example.org upload ./bundle
//	thincf --server=https://cfg.example.org --cert=web1.pem --key=web1.key \
//	    script --state=$(cat /var/db/thincf/state) -- apply -n
//
// The script command prints what the server generates and does not run it.
package main
