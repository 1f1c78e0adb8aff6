// Package labels is a static, I/O-free well-known-address table: a pure
// lookup used to annotate contention rows, plus the hot-slot seeding
// hints the prefetcher uses for recognized DeFi primitives. The table
// itself is not chain data, just a fixed annotation list.
package labels

import "github.com/argus-xyz/argus/common"

// entry pairs a mainnet address with its human label and, for a recognized
// DeFi primitive, the storage worth speculatively seeding: balance-mapping
// base slots (combined with the interacting accounts at seed time) and
// fixed slots (e.g. AMM reserves) warmed as-is.
type entry struct {
	label        string
	balanceBases []uint8
	fixedSlots   []common.SlotKey
}

var table = map[common.Address]entry{
	// AMMs / DEX routers
	addr("0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D"): {label: "Uniswap V2: Router"},
	addr("0xE592427A0AEce92De3Edee1F18E0157C05861564"): {label: "Uniswap V3: Router"},
	addr("0x68b3465833fb72A70ecDF485E0e4C7bD8665Fc45"): {label: "Uniswap V3: Router 2"},
	addr("0x1111111254EEB25477B68fb85Ed929f73A960582"): {label: "1inch: Aggregation Router V5"},
	addr("0xDef1C0ded9bec7F1a1670819833240f027b25EfF"): {label: "0x: Exchange Proxy"},
	addr("0xd9e1cE17f2641f24aE83637ab66a2cca9C378B9F"): {label: "Sushiswap: Router"},
	addr("0xBA12222222228d8Ba445958a75a0704d566BF2C8"): {label: "Balancer: Vault"},
	addr("0x99a58482BD75cbab83b27EC03CA68fF489b5788f"): {label: "Curve: Registry"},
	addr("0xbEbc44782C7dB0a1A60Cb6fe97d0b483032FF1C7"): {label: "Curve: 3pool", fixedSlots: []common.SlotKey{slotNum(1), slotNum(2), slotNum(3)}}, // pool balances array
	addr("0x11111112542D85B3EF69AE05771c2dCCff4fAa26"): {label: "1inch: Aggregation Router V3"},

	// Major ERC-20 tokens
	addr("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"): {label: "WETH", balanceBases: []uint8{3}},
	addr("0xdAC17F958D2ee523a2206206994597C13D831ec7"): {label: "USDT", balanceBases: []uint8{2}},
	addr("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"): {label: "USDC", balanceBases: []uint8{9}},
	addr("0x6B175474E89094C44Da98b954EedeAC495271d0F"): {label: "DAI", balanceBases: []uint8{2}},
	addr("0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599"): {label: "WBTC"},
	addr("0x514910771AF9Ca656af840dff83E8264EcF986CA"): {label: "LINK"},
	addr("0x1f9840a85d5aF5bf1D1762F925BDADdC4201F984"): {label: "UNI"},
	addr("0x7Fc66500c84A76Ad7e9c93437bFc5Ac33E2DDaE9"): {label: "AAVE"},
	addr("0xD533a949740bb3306d119CC777fa900bA034cd52"): {label: "CRV"},
	addr("0xc00e94Cb662C3520282E6f5717214004A7f26888"): {label: "COMP"},

	// Lending
	addr("0x7d2768dE32b0b80b7a3454c06BdAc94A69DDc7A9"): {label: "Aave V2: LendingPool"},
	addr("0x398eC7346DcD622eDc5ae82352F02bE94C62d119"): {label: "Aave V1: LendingPool"},
	addr("0x87870Bca3F3fD6335C3F4ce8392D69350B4fA4E2"): {label: "Aave V3: Pool"},
	addr("0x3d9819210A31b4961b30EF54bE2aeD79B9c9Cd3B"): {label: "Compound: Comptroller"},
	addr("0x5d3a536E4D6DbD6114cc1Ead35777bAB948E3643"): {label: "Compound: cDAI"},
	addr("0x39AA39c021dfbaE8faC545936693aC917d5E7563"): {label: "Compound: cUSDC"},
	addr("0xC11b1268C1A384e55C48c2391d8d480264A3A7F4"): {label: "Compound: cWBTC"},

	// Aggregators
	addr("0x881D40237659C251811CEC9c364ef91dC08D300C"): {label: "Metamask: Swap Router"},
	addr("0x1111111254fb6c44bAC0beD2854e76F90643097d"): {label: "1inch: Aggregation Router V4"},
	addr("0xDEF171Fe48CF0115B1d80b88dc8eAB59176FEe57"): {label: "Paraswap: Router V5"},
	addr("0x6131B5fae19EA4f9D964eAc0408E4408b66337b5"): {label: "Kyberswap: Aggregation Router"},

	// NFT marketplaces
	addr("0x7f268357A8c2552623316e2562D90e642bB538E5"): {label: "OpenSea: Wyvern Exchange V2"},
	addr("0x00000000006c3852cbEf3e08E8dF289169EdE581"): {label: "OpenSea: Seaport 1.1"},
	addr("0x00000000000000ADc04C56Bf30aC9d3c0aAF14dC"): {label: "Seaport 1.4"},
	addr("0x59728544B08AB483533076417FbBB2fD0B17CE3a"): {label: "LooksRare: Exchange"},
	addr("0x74312363e45DCaBA76c59ec49a7Aa8A65a67EeD3"): {label: "X2Y2: Exchange"},
	addr("0x39da41747a83aeE658334415666f3EF92DD0D541"): {label: "Blur: Exchange"},

	// Liquid staking
	addr("0xae7ab96520DE3A18E5e111B5EaAb095312D7fE84"): {label: "Lido: stETH"},
	addr("0x7f39C581F595B53c5cb19bD0b3f8dA6c935E2Ca0"): {label: "Lido: wstETH"},
	addr("0xae78736Cd615f374D3085123A210448E74Fc6393"): {label: "Rocket Pool: rETH"},
	addr("0xBe9895146f7AF43049ca1c1AE358B0541Ea49704"): {label: "Coinbase: cbETH"},
	addr("0xf951E335afb289353dc249e82926178EaC7DEd78"): {label: "Swell: swETH"},

	// Bridges / misc infra
	addr("0x3ee18B2214AFF97000D974cf647E7C347E8fa585"): {label: "Wormhole: Ethereum Bridge"},
	addr("0xA0c68C638235ee32657e8f720a23ceC1bFc77C77"): {label: "Polygon: ERC20 Predicate"},
	addr("0x00000000219ab540356cBB839Cbe05303d7705Fa"): {label: "Ethereum: Deposit Contract"},
	addr("0xA4b1b81AaCc878513ac3C2Ba49522Ee56943980e"): {label: "Arbitrum: Bridge"},
	addr("0x99C9fc46f92E8a1c0deC1b1747d010903E884bE1"): {label: "Optimism: L1 Standard Bridge"},
	addr("0x853d955aCEf822Db058eb8505911ED77F175b99e"): {label: "Frax: FRAX"},
}

func addr(hex string) common.Address {
	var raw [20]byte
	decodeHex(hex, raw[:])
	return common.Address(raw)
}

// decodeHex decodes a 0x-prefixed hex string into dst, which must be sized
// exactly to the decoded length. Panics on malformed input; this only
// ever runs on the fixed literals above, at package init.
func decodeHex(s string, dst []byte) {
	if len(s) >= 2 && (s[0:2] == "0x" || s[0:2] == "0X") {
		s = s[2:]
	}
	for i := 0; i < len(dst); i++ {
		hi := hexNibble(s[i*2])
		lo := hexNibble(s[i*2+1])
		dst[i] = hi<<4 | lo
	}
}

func hexNibble(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	default:
		panic("labels: invalid hex literal")
	}
}

func slotNum(n byte) common.SlotKey {
	return common.BytesToHash([]byte{n})
}

// Lookup returns the human label for addr, if known. ok is false for any
// address not in the static table, and callers should render the hex form
// instead.
func Lookup(a common.Address) (label string, ok bool) {
	e, found := table[a]
	if !found {
		return "", false
	}
	return e.label, true
}

// HotSlots describes the storage worth speculatively warming on a
// recognized DeFi contract. BalanceBases are Solidity mapping base slots;
// the concrete per-account slot is keccak256(pad32(account) ++
// pad32(base)), which the prefetcher derives once it knows which accounts
// a transaction moves tokens between. Fixed slots are warmed as-is.
type HotSlots struct {
	BalanceBases []uint8
	Fixed        []common.SlotKey
}

// HotSlotsFor returns the hot-slot hints for a. ok is false for addresses
// not in the static table; a labeled address with no hints returns ok with
// an empty HotSlots.
func HotSlotsFor(a common.Address) (HotSlots, bool) {
	e, found := table[a]
	if !found {
		return HotSlots{}, false
	}
	return HotSlots{BalanceBases: e.balanceBases, Fixed: e.fixedSlots}, true
}

// Count reports the size of the static table, exported for tests that
// assert table coverage without hardcoding the number in two places.
func Count() int { return len(table) }
