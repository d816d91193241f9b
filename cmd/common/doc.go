// Package common holds what the coordinator and member commands share:
// the YAML configuration file, logger setup and key loading.
//
// A configuration file looks like:
//
//	station_id: alice
//	listen_addr: ":9001"
//	advertise_addr: "http://10.0.0.2:9001"
//	metrics_addr: ":9091"
//	log_level: info
//	log_json: false
//	keys:
//	  seed: ""          # hex Ed25519 seed
//	  seed_file: ""     # read, or created when missing
//	ring:
//	  password: "hunter2"
//	  token_interval: 100ms
//	  max_hold_time: 5s
//	coordinator:        # members only
//	  address: "http://10.0.0.1:9000"
//	  public_key: ""    # hex; pinned from the first reply if empty
//	postgres:           # coordinator only, optional
//	  dsn: "postgres://ring@localhost/tokenring?sslmode=disable"
package common
