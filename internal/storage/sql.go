package storage

import (
	_ "embed"
)

const (
	deleteSessionsSQL = `DELETE FROM sessions`

	deletePacketsSQL = `DELETE FROM packets`

	insertSessionSQL = `
INSERT INTO sessions (id,
                      position,
                      start_time,
                      end_time,
                      device_id)
VALUES (?, ?, ?, ?, ?)`

	insertPacketSQL = `
INSERT INTO packets (session_id,
                     seq,
                     time,
                     device_time,
                     latitude,
                     longitude,
                     altitude,
                     speed,
                     satellites,
                     temperature,
                     humidity,
                     external_temperature,
                     external_humidity,
                     pressure,
                     approx_altitude,
                     heart_rate,
                     fall_detected,
                     button_pressed,
                     snr,
                     rssi,
                     freq_err)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectSessionsSQL = `
SELECT
    id,
    start_time,
    end_time,
    device_id
FROM sessions
ORDER BY position`

	selectPacketsSQL = `
SELECT
    p.session_id,
    p.time,
    p.device_time,
    p.latitude,
    p.longitude,
    p.altitude,
    p.speed,
    p.satellites,
    p.temperature,
    p.humidity,
    p.external_temperature,
    p.external_humidity,
    p.pressure,
    p.approx_altitude,
    p.heart_rate,
    p.fall_detected,
    p.button_pressed,
    p.snr,
    p.rssi,
    p.freq_err
FROM packets p
    JOIN sessions s ON s.id = p.session_id
ORDER BY s.position, p.seq`
)

//go:embed schema.sql
var initSchemaSQL string
