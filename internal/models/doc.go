// Package models defines the records Cashflow persists.
//
// # Records
//
//   - Obligation: one recorded debt, the raw input of a settlement run
//   - Group: a named set of parties whose obligations are settled together
//   - SettlementRun: an archived settlement result and its transfers
//   - User: an account that can record and delete obligations
//
// Parties are identified by plain strings. They do not need a User account;
// a party is whoever appears as sender or receiver of an obligation.
//
// # Design Principles
//
//  1. Records hold data only; settlement logic lives in the calculator package.
//  2. Relationships use ID strings instead of pointers.
//  3. Money is decimal.Decimal, never float64.
//  4. Timestamps are Unix seconds, calendar dates are time.Time at UTC midnight.
package models
