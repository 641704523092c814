/*
Package signal holds the contract types shared by the signal bus, the data layer,
handlers and broker adapters. It carries no behavior beyond small accessors.
*/
package signal
