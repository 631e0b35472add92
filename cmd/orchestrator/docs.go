package main

// @title Payment Orchestrator API
// @version 1.0
// @description Creates payments, settles them through external gateways, refunds them and reconciles gateway webhooks.

// @host localhost:8080
// @BasePath /

// @tag.name payments
// @tag.description Payment lifecycle endpoints

// @tag.name customers
// @tag.description Customer records and their payments

// @tag.name webhooks
// @tag.description Gateway notifications

// @tag.name health
// @tag.description Health check endpoints
