// Package app собирает компоненты Outpost из config.Config:
// хранилище статусов, транспорт dispatch, архив логов, resolver
// endpoint'а и sink'и уведомлений.
//
// Открытые подключения регистрируются в Resources и закрываются
// одним вызовом Close в обратном порядке.
package app
