package vault

import "errors"

var (
	// ErrNilState indicates the engine has not been wired to a state backend.
	ErrNilState = errors.New("vault: state not configured")
	// ErrNilMarket indicates the engine has not been wired to the liquidity venue.
	ErrNilMarket = errors.New("vault: market not configured")
	// ErrInvalidConfiguration indicates the venue parameters (asset pairing, fee
	// tier, range granularity) are malformed or missing.
	ErrInvalidConfiguration = errors.New("vault: invalid venue configuration")
	// ErrInvalidAmount indicates a zero, negative or nil monetary input.
	ErrInvalidAmount = errors.New("vault: invalid amount")
	// ErrInsufficientBalance indicates settlement needs more of an asset than the
	// paying account holds.
	ErrInsufficientBalance = errors.New("vault: insufficient balance")
	// ErrNothingPending indicates a conversion was triggered with an empty
	// contribution ledger.
	ErrNothingPending = errors.New("vault: no pending contributions")
	// ErrSlippageExceeded indicates the realized swap output fell below the
	// caller's minimum; the whole conversion aborts.
	ErrSlippageExceeded = errors.New("vault: slippage exceeded")
	// ErrRecordNotFound indicates the conversion record sequence does not exist.
	ErrRecordNotFound = errors.New("vault: conversion record not found")
	// ErrNoPosition indicates a harvest was requested before any liquidity has
	// been deployed.
	ErrNoPosition = errors.New("vault: no liquidity position")
	// ErrReentrantCall indicates an entry point was invoked again from within the
	// venue settlement window.
	ErrReentrantCall = errors.New("vault: reentrant call")
	// ErrDustConversion indicates the snapshot was too small to mint any
	// liquidity at the current price.
	ErrDustConversion = errors.New("vault: conversion too small to deploy")
)
