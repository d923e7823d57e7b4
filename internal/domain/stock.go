package domain

// USDCMint is the SPL mint address of USDC, the quote asset for all swaps.
const USDCMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

// USDCDecimals is the decimal precision of USDC token amounts.
const USDCDecimals = 6

// Stock describes a tokenized stock available for trading.
type Stock struct {
	Symbol   string // e.g. "AAPLx"
	Name     string // e.g. "Apple"
	Mint     string // SPL mint address
	Decimals int    // token decimal precision
}

// Stocks is the tokenized-stock catalog keyed by symbol.
// Mint addresses match the xStocks program deployments.
var Stocks = map[string]Stock{
	"AAPLx":  {Symbol: "AAPLx", Name: "Apple", Mint: "XsbEhLAtcf6HdfpFZ5xEMdqW8nfAvcsP5bdudRLJzJp", Decimals: 8},
	"TSLAx":  {Symbol: "TSLAx", Name: "Tesla", Mint: "XsDoVfqeBukxuZHWhdvWHBhgEHjGNst4MLodqsJHzoB", Decimals: 8},
	"NVDAx":  {Symbol: "NVDAx", Name: "NVIDIA", Mint: "Xsc9qvGR1efVDFGLrVsmkzv3qi45LTBjeUKSPmx9qEh", Decimals: 8},
	"GOOGLx": {Symbol: "GOOGLx", Name: "Alphabet", Mint: "XsCPL9dNWBMvFtTmwcCA5v3xWPSMEBCszbQdiLLq6aN", Decimals: 8},
	"AMZNx":  {Symbol: "AMZNx", Name: "Amazon", Mint: "Xs3eBt7uRfJX8QUs4suhyU8p2M6DoUDrJyWBa8LLZsg", Decimals: 8},
	"MSFTx":  {Symbol: "MSFTx", Name: "Microsoft", Mint: "XspzcW1PRtgf6Wj92HCiZdjzKCyFekVD8P5Ueh3dRMX", Decimals: 8},
	"METAx":  {Symbol: "METAx", Name: "Meta", Mint: "Xsa62P5mvPszXL1krVUnU5ar38bBSVcWAB6fmPCo5Zu", Decimals: 8},
	"SPYx":   {Symbol: "SPYx", Name: "S&P 500 ETF", Mint: "XsoCS1TfEyfFhfvj8EtZ528L3CaKBDBRqRapnBbDF2W", Decimals: 8},
	"COINx":  {Symbol: "COINx", Name: "Coinbase", Mint: "Xs7ZdzSHLU9ftNJsii5fCeJhoRWSC32SQGzGQtePxNu", Decimals: 8},
	"GMEx":   {Symbol: "GMEx", Name: "GameStop", Mint: "Xsf9mBktVB9BSU5kf4nHxPq5hCBJ2j2ui3ecFGxPRGc", Decimals: 8},
}

// StockByMint returns the catalog entry for a mint address.
func StockByMint(mint string) (Stock, bool) {
	for _, s := range Stocks {
		if s.Mint == mint {
			return s, true
		}
	}
	return Stock{}, false
}

// StockBySymbol returns the catalog entry for a ticker symbol.
func StockBySymbol(symbol string) (Stock, bool) {
	s, ok := Stocks[symbol]
	return s, ok
}
