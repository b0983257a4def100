// Package service implements the application's business operations over
// the store interfaces: task admission and settlement with credit
// accounting, and account registration and login.
package service
