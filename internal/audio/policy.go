/*
 * This file is part of Loqa (https://github.com/loqalabs/loqa).
 * Copyright (C) 2025 Loqa Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package audio

// WillUseAAudio reports whether a request for api is serviced by AAudio
// given the platform probes. Platforms call SelectAudioAPI so this always
// mirrors the backend they actually pick.
func WillUseAAudio(api AudioAPI, supported, recommended bool) bool {
	return (api == AudioAPIAAudio && supported) ||
		(api == AudioAPIUnspecified && recommended)
}

// SelectAudioAPI resolves a requested api to the backend that will service it.
func SelectAudioAPI(api AudioAPI, supported, recommended bool) AudioAPI {
	if WillUseAAudio(api, supported, recommended) {
		return AudioAPIAAudio
	}
	return AudioAPIOpenSLES
}
