/*
Package config loads the hypernet coordinator configuration.

A YAML file is decoded over Default, so it only needs the keys it changes:

	name: lab
	dimension: 4
	host: 127.0.0.1
	ports:
	  min: 8000
	  max: 12000
	allocator: range        # or ephemeral
	launcher: process       # or inprocess
	node_binary: hypernode
	admin_base_port: 9100   # node L serves /health, /ready, /metrics on 9100+L
	data_dir: /var/lib/hypernet
	concurrency: 16
	best_effort: false
	timeouts:
	  request: 2s
	  forward: 2s
	  launch: 10s
	  convergence: 10s
	  poll_interval: 50ms
	log:
	  level: info
	  json: false

Command-line flags override file values. Validate reports every problem at
once.
*/
package config
