// Package credential implements AK/SK issuance and constant-time
// verification for worker nodes.
package credential
