package domain

// domain package contains the Domain Models of ML Commons nodes.
//
// `domain/ENTITY` directory holds an entity, its wire and document representations,
// and the repository storing it through the sdk client.
//
// # Entities
//
// Core entities in the domain are:
//
//   - `controller`: rate limits of a model for users, in two document families (legacy and model controllers).
//   - `model`: the part of a model document which controllers refer to.
//   - `modelcache`: per-node cache of deployed models and their rate limiters.
//   - `memorycontainer`: containers of agentic memories, with their configuration and memory documents.
