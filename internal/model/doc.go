// Package model defines the exchange-neutral market data types shared by every
// stream component.
//
// Conventions:
//   - Prices, quantities and amounts: decimal.Decimal, never float64
//   - Timestamps: int64 microseconds since Unix epoch
//   - Tickers: exchange-native symbol strings (e.g. "KRW-BTC", "005930", "AAPL")
package model
