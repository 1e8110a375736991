package router

import (
	"context"
	"fmt"

	"obscura-core/internal/config"
	"obscura-core/internal/domain"
)

// candidate is one validator candidate with the endpoint used for probing.
type candidate struct {
	pubkey   string
	region   string
	name     string
	endpoint string
	tee      bool
	loadPct  uint8
}

// devnetValidators is the static region table for the devnet cluster.
// Production networks discover validators through the router instead.
var devnetValidators = []candidate{
	{
		pubkey:   "78VZ2Rv6LTB9Z6d6qxtJBK2xksRPDDjwNnNnnMyFssGj",
		region:   "us-east",
		name:     "er-us-east",
		endpoint: "https://devnet-us-east.magicblock.app",
	},
	{
		pubkey:   "7A6BZaEStSRhcRDC5nZqSdu2jVfCCAFkP41gAQDqz223",
		region:   "us-west",
		name:     "er-us-west",
		endpoint: "https://devnet-us-west.magicblock.app",
	},
	{
		pubkey:   "CTVUwLjHorNnMBgDBgtgSbru6V4kFvXbaMCdbY8ipwBH",
		region:   "eu-west",
		name:     "er-eu-west",
		endpoint: "https://devnet-eu-west.magicblock.app",
	},
	{
		pubkey:   "7hF66fRnP6D25KxJ1Fvs1WVJxRG2bLXKmUYBNZv22Y7i",
		region:   "ap-southeast",
		name:     "er-ap-southeast",
		endpoint: "https://devnet-ap-southeast.magicblock.app",
	},
	{
		pubkey:   config.TEEValidator,
		region:   "us-east",
		name:     "tee-us-east",
		endpoint: "https://devnet-tee.magicblock.app",
		tee:      true,
	},
}

// fetchCandidates returns the validator candidate set for the configured
// network: the static table on devnet, a router query elsewhere.
func (r *Router) fetchCandidates(ctx context.Context) ([]candidate, error) {
	if r.cfg.Network == config.Devnet {
		out := make([]candidate, len(devnetValidators))
		copy(out, devnetValidators)
		return out, nil
	}

	var result []struct {
		Identity string `json:"identity"`
		Region   string `json:"region"`
		Name     string `json:"name"`
		FQDN     string `json:"fqdn"`
		LoadPct  uint8  `json:"loadPct"`
		TEE      bool   `json:"tee"`
	}
	if err := r.router.Call(ctx, "getRoutes", nil, &result); err != nil {
		return nil, fmt.Errorf("fetch validator routes: %w", err)
	}

	candidates := make([]candidate, 0, len(result))
	for _, v := range result {
		candidates = append(candidates, candidate{
			pubkey:   v.Identity,
			region:   v.Region,
			name:     v.Name,
			endpoint: v.FQDN,
			tee:      v.TEE,
			loadPct:  v.LoadPct,
		})
	}
	return candidates, nil
}

// toValidatorInfo converts a probed candidate to the public shape.
func (c candidate) toValidatorInfo(latencyMs uint32, available bool) domain.ValidatorInfo {
	info := domain.ValidatorInfo{
		Pubkey:    c.pubkey,
		Region:    c.region,
		LatencyMs: latencyMs,
		LoadPct:   c.loadPct,
		Available: available,
		TEE:       c.tee,
	}
	if c.name != "" {
		name := c.name
		info.Name = &name
	}
	return info
}
