// Package api provides the REST status API of ChainSyncer
// @title ChainSyncer API
// @version 1.0
// @description REST API for inspecting and operating indexes synchronized by ChainSyncer
// @contact.name API Support
// @contact.url https://github.com/goran-ethernal/ChainSyncer
// @license.name Apache 2.0
// @license.url https://www.apache.org/licenses/LICENSE-2.0.html
// @host localhost:8080
// @basePath /api/v1
// @schemes http https
package api
